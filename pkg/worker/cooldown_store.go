package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/G3niusYukki/xianyu-chatops/pkg/message"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

// stateBlobCooldownStore persists message.CooldownState in the
// session_tasks.state_blob JSON column, so the outbound pacing history
// survives a process restart without a dedicated table.
type stateBlobCooldownStore struct {
	store *workflow.Store
}

// NewCooldownStore adapts a *workflow.Store into a message.CooldownStore.
func NewCooldownStore(store *workflow.Store) message.CooldownStore {
	return &stateBlobCooldownStore{store: store}
}

type stateBlob struct {
	Cooldown message.CooldownState `json:"cooldown"`
}

func (s *stateBlobCooldownStore) LoadCooldown(ctx context.Context, sessionID string) (message.CooldownState, error) {
	raw, err := s.store.GetStateBlob(ctx, sessionID)
	if err != nil {
		return message.CooldownState{}, err
	}
	if raw == "" {
		return message.CooldownState{}, nil
	}
	var blob stateBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return message.CooldownState{}, fmt.Errorf("unmarshal state blob %q: %w", sessionID, err)
	}
	return blob.Cooldown, nil
}

func (s *stateBlobCooldownStore) SaveCooldown(ctx context.Context, sessionID string, state message.CooldownState) error {
	blob := stateBlob{Cooldown: state}
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("marshal state blob %q: %w", sessionID, err)
	}
	return s.store.SetStateBlob(ctx, sessionID, string(raw))
}
