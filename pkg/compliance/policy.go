package compliance

import (
	"os"
	"sync"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// defaultStopWords mirrors the original tool's hardcoded high-risk terms:
// off-platform contact attempts that must never reach the buyer unfiltered.
var defaultStopWords = []string{"微信", "vx", "v信", "站外", "转账"}

func defaultPolicy() Policy {
	return Policy{
		StopWords: append([]string(nil), defaultStopWords...),
		RateLimit: RateLimitPolicy{
			Account: RateLimitRule{WindowSeconds: 3600, MaxMessages: 60},
			Session: RateLimitRule{WindowSeconds: 60, MaxMessages: 6},
		},
	}
}

// policyStore holds the resolved policy document plus the mtime it was
// loaded from, swapped atomically under a lock on every reload.
type policyStore struct {
	mu       sync.RWMutex
	doc      PolicyDocument
	mtime    time.Time
	path     string
}

func newPolicyStore(path string) *policyStore {
	return &policyStore{path: path, doc: PolicyDocument{Global: defaultPolicy()}}
}

// load reads the YAML file if its mtime has changed since the last load,
// merging the global policy over the built-in defaults. A missing file is
// tolerated: the defaults (and any previously loaded document) stand.
func (s *policyStore) load() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	s.mu.RLock()
	unchanged := info.ModTime().Equal(s.mtime)
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	doc := PolicyDocument{Global: defaultPolicy()}
	var parsed PolicyDocument
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return err
	}
	if err := mergo.Merge(&doc.Global, parsed.Global, mergo.WithOverride); err != nil {
		return err
	}
	doc.Accounts = parsed.Accounts
	doc.Sessions = parsed.Sessions

	s.mu.Lock()
	s.doc = doc
	s.mtime = info.ModTime()
	s.mu.Unlock()
	return nil
}

// resolve layers global -> account -> session, scalar fields replacing and
// list fields in higher scopes replacing lower ones (mergo.WithOverride's
// slice-overwrite semantics implement this directly), returning the
// effective policy and the scope name it was resolved at.
func (s *policyStore) resolve(accountID, sessionID string) (Policy, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := "global"
	policy := s.doc.Global

	if accountID != "" {
		if override, ok := s.doc.Accounts[accountID]; ok {
			merged := policy
			if err := mergo.Merge(&merged, override, mergo.WithOverride); err == nil {
				policy = merged
				scope = "account:" + accountID
			}
		}
	}

	if sessionID != "" {
		if override, ok := s.doc.Sessions[sessionID]; ok {
			merged := policy
			if err := mergo.Merge(&merged, override, mergo.WithOverride); err == nil {
				policy = merged
				scope = "session:" + sessionID
			}
		}
	}

	return policy, scope
}
