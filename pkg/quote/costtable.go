package quote

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// CSVCostProvider implements CostProvider by loading cost records from a
// CSV file with header columns "courier,origin,destination,first_cost,
// extra_cost,throw_ratio" (throw_ratio optional). This is the CSV-only
// fallback for the cost-table collaborator spec.md §9 explicitly allows
// when spreadsheet (.xlsx) parsing is out of scope.
type CSVCostProvider struct {
	mu      sync.RWMutex
	records []CostRecord
}

// NewCSVCostProvider loads records from path immediately.
func NewCSVCostProvider(path string) (*CSVCostProvider, error) {
	p := &CSVCostProvider{}
	if err := p.Reload(path); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the CSV file, replacing the in-memory record set.
func (p *CSVCostProvider) Reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cost table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read cost table header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"courier", "origin", "destination", "first_cost", "extra_cost"} {
		if _, ok := idx[required]; !ok {
			return fmt.Errorf("cost table missing required column %q", required)
		}
	}

	var records []CostRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read cost table row: %w", err)
		}

		first, err := strconv.ParseFloat(strings.TrimSpace(row[idx["first_cost"]]), 64)
		if err != nil {
			continue
		}
		extra, err := strconv.ParseFloat(strings.TrimSpace(row[idx["extra_cost"]]), 64)
		if err != nil {
			continue
		}
		var throwRatio float64
		if i, ok := idx["throw_ratio"]; ok && i < len(row) {
			throwRatio, _ = strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		}

		records = append(records, CostRecord{
			Courier:     normalizeCourier(row[idx["courier"]]),
			Origin:      normalizeLocation(row[idx["origin"]]),
			Destination: normalizeLocation(row[idx["destination"]]),
			FirstCost:   first,
			ExtraCost:   extra,
			ThrowRatio:  throwRatio,
		})
	}

	p.mu.Lock()
	p.records = records
	p.mu.Unlock()
	return nil
}

// FindCandidates returns cost records matching origin/destination and,
// when courier != "auto", matching courier too.
func (p *CSVCostProvider) FindCandidates(_ context.Context, origin, destination, courier string) ([]CostRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	origin = normalizeLocation(origin)
	destination = normalizeLocation(destination)
	courier = normalizeCourier(courier)

	var out []CostRecord
	for _, r := range p.records {
		if r.Origin != origin || r.Destination != destination {
			continue
		}
		if courier != "auto" && r.Courier != courier {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
