// Package quote computes shipping quotes with multi-source fallback, a
// two-tier cache, and a per-source circuit breaker.
package quote

import "context"

// Request describes one shipping quote lookup.
type Request struct {
	Origin         string
	Destination    string
	WeightKg       float64
	VolumeCC       float64
	VolumeWeightKg float64
	ServiceLevel   string // standard | express | urgent
	Courier        string // auto | <name>
	ItemType       string
	TimeWindow     string
}

// CacheKey buckets the request to 0.5kg / 500cc / 0.5kg steps so near-
// identical requests share a cache entry, after route normalization.
func (r Request) CacheKey() string {
	n := normalizeRequest(r)
	weightBucket := roundToStep(n.WeightKg, 0.5)
	volumeBucket := roundToStep(n.VolumeCC, 500)
	volumeWeightBucket := roundToStep(n.VolumeWeightKg, 0.5)
	return joinLower(n.Origin, n.Destination, n.Courier,
		formatFloat(weightBucket), formatFloat(volumeBucket),
		formatFloat(volumeWeightBucket), n.ServiceLevel)
}

// Snapshot records provenance for a single quote result.
type Snapshot struct {
	CostSource         string
	CostVersion        string
	PricingRuleVersion string
	LatencyMs          int64
	ProviderChain      []string
	FallbackReason     string
}

// Result is the outcome of a quote lookup.
type Result struct {
	Provider     string
	BaseFee      float64
	Surcharges   map[string]float64
	TotalFee     float64
	Currency     string
	ETAMinutes   int
	Confidence   float64
	Explain      map[string]any
	FallbackUsed bool
	CacheHit     bool
	Stale        bool
	Snapshot     Snapshot
}

// CostRecord is a read-only row produced by the external cost-table
// collaborator (spreadsheet/CSV parser, out of scope for this module).
type CostRecord struct {
	Courier     string
	Origin      string
	Destination string
	FirstCost   float64
	ExtraCost   float64
	ThrowRatio  float64 // 0 means "not set"
}

// CostProvider is the contract for the external cost-table collaborator.
type CostProvider interface {
	FindCandidates(ctx context.Context, origin, destination, courier string) ([]CostRecord, error)
}

// RemoteProvider is the "api" source: a remote pricing service.
type RemoteProvider interface {
	Quote(ctx context.Context, req Request) (Result, error)
}
