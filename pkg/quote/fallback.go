package quote

import "strings"

const (
	fallbackBaseFee     = 12.0
	fallbackDistanceFee = 5.0
	fallbackWeightFee   = 2.5 // per kg beyond the first
	fallbackRemoteFee   = 8.0
)

// templateQuote computes the built-in heuristic quote used when every other
// source has failed or is unavailable: a base fee, a distance surcharge
// when origin and destination provinces differ, a per-kg weight surcharge
// beyond the first kilogram, and a remote-area surcharge for 西藏/新疆/青海.
func templateQuote(req Request) Result {
	surcharges := make(map[string]float64)

	originProvince := provinceOf(req.Origin)
	destProvince := provinceOf(req.Destination)
	if originProvince != destProvince {
		surcharges["distance"] = fallbackDistanceFee
	}

	billable := req.WeightKg
	if req.VolumeWeightKg > billable {
		billable = req.VolumeWeightKg
	}
	extraKg := billable - 1.0
	if extraKg > 0 {
		surcharges["续重"] = extraKg * fallbackWeightFee
	}

	if isRemoteArea(destProvince) {
		surcharges["remote_area"] = fallbackRemoteFee
	}

	total := fallbackBaseFee
	for _, v := range surcharges {
		total += v
	}

	return Result{
		Provider:   "fallback_template",
		BaseFee:    fallbackBaseFee,
		Surcharges: surcharges,
		TotalFee:   total,
		Currency:   "CNY",
		ETAMinutes: 3 * 1440,
		Confidence: 0.4,
		Explain: map[string]any{
			"billing_weight_kg": billable,
			"actual_weight_kg":  req.WeightKg,
			"volume_weight_kg":  req.VolumeWeightKg,
		},
		FallbackUsed: true,
	}
}

func provinceOf(location string) string {
	runes := []rune(location)
	if len(runes) <= 2 {
		return location
	}
	return string(runes[:2])
}

func costTableQuote(req Request, records []CostRecord) (Result, bool) {
	if len(records) == 0 {
		return Result{}, false
	}

	best := records[0]
	for _, r := range records[1:] {
		if r.FirstCost+r.ExtraCost < best.FirstCost+best.ExtraCost {
			best = r
		}
	}

	extraKg := req.WeightKg - 1.0
	if extraKg < 0 {
		extraKg = 0
	}
	throwRatio := best.ThrowRatio
	if throwRatio <= 0 {
		throwRatio = 6000
	}
	volumeWeight := req.VolumeCC / throwRatio
	billable := req.WeightKg
	if volumeWeight > billable {
		billable = volumeWeight
		extraKg = billable - 1.0
		if extraKg < 0 {
			extraKg = 0
		}
	}

	total := best.FirstCost + extraKg*best.ExtraCost

	return Result{
		Provider:   "cost_table",
		BaseFee:    best.FirstCost,
		Surcharges: map[string]float64{"续重": extraKg * best.ExtraCost},
		TotalFee:   total,
		Currency:   "CNY",
		ETAMinutes: 2 * 1440,
		Confidence: 0.75,
		Explain: map[string]any{
			"matched_courier":  best.Courier,
			"billing_weight_kg": billable,
			"actual_weight_kg":  req.WeightKg,
			"volume_weight_kg":  volumeWeight,
			"volume_divisor":    throwRatio,
		},
	}, true
}

func normalizeCourier(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "auto"
	}
	return n
}
