package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateQuoteBaseCaseNoSurcharges(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "北京", WeightKg: 0.5})
	result := templateQuote(req)

	assert.Equal(t, fallbackBaseFee, result.TotalFee)
	assert.Empty(t, result.Surcharges)
	assert.True(t, result.FallbackUsed)
}

func TestTemplateQuoteAddsDistanceSurchargeAcrossProvinces(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "上海", WeightKg: 0.5})
	result := templateQuote(req)

	assert.Contains(t, result.Surcharges, "distance")
	assert.Equal(t, fallbackBaseFee+fallbackDistanceFee, result.TotalFee)
}

func TestTemplateQuoteAddsWeightSurchargeBeyondFirstKg(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "北京", WeightKg: 3})
	result := templateQuote(req)

	assert.Contains(t, result.Surcharges, "续重")
	assert.InDelta(t, 2*fallbackWeightFee, result.Surcharges["续重"], 0.001)
}

func TestTemplateQuoteUsesVolumeWeightWhenGreater(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "北京", WeightKg: 1, VolumeWeightKg: 4})
	result := templateQuote(req)

	assert.InDelta(t, 3*fallbackWeightFee, result.Surcharges["续重"], 0.001)
}

func TestTemplateQuoteAddsRemoteAreaSurcharge(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "西藏", WeightKg: 0.5})
	result := templateQuote(req)

	assert.Contains(t, result.Surcharges, "remote_area")
}

func TestCostTableQuoteEmptyRecords(t *testing.T) {
	_, ok := costTableQuote(Request{}, nil)
	assert.False(t, ok)
}

func TestCostTableQuotePicksCheapestCandidate(t *testing.T) {
	records := []CostRecord{
		{Courier: "yto", FirstCost: 10, ExtraCost: 3},
		{Courier: "sf", FirstCost: 8, ExtraCost: 2},
	}
	req := Request{WeightKg: 2}
	result, ok := costTableQuote(req, records)
	require := assert.New(t)
	require.True(ok)
	require.Equal("cost_table", result.Provider)
	require.Equal(8.0+1*2.0, result.TotalFee)
	require.Equal("sf", result.Explain["matched_courier"])
}

func TestCostTableQuoteUsesThrowRatioWhenVolumeWeightDominates(t *testing.T) {
	records := []CostRecord{
		{Courier: "sf", FirstCost: 8, ExtraCost: 2, ThrowRatio: 5000},
	}
	req := Request{WeightKg: 1, VolumeCC: 20000}
	result, ok := costTableQuote(req, records)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, result.Explain["volume_weight_kg"], 0.001)
	assert.InDelta(t, 8+3*2.0, result.TotalFee, 0.001)
}

func TestNormalizeCourierDefaultsToAuto(t *testing.T) {
	assert.Equal(t, "auto", normalizeCourier(""))
	assert.Equal(t, "sf", normalizeCourier(" SF "))
}
