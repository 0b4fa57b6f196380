package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLocationResolvesAlias(t *testing.T) {
	assert.Equal(t, "北京市", normalizeLocation("北京"))
	assert.Equal(t, "北京市", normalizeLocation("北京市"))
	assert.Equal(t, "内蒙古自治区", normalizeLocation("内蒙"))
}

func TestNormalizeLocationStripsSuffixWhenNoAlias(t *testing.T) {
	assert.Equal(t, "杭州", normalizeLocation("杭州市"))
}

func TestNormalizeLocationEmpty(t *testing.T) {
	assert.Equal(t, "", normalizeLocation("   "))
}

func TestNormalizeRequestDefaultsServiceLevelAndCourier(t *testing.T) {
	req := normalizeRequest(Request{Origin: "北京", Destination: "上海"})
	assert.Equal(t, "standard", req.ServiceLevel)
	assert.Equal(t, "auto", req.Courier)
	assert.Equal(t, "北京市", req.Origin)
	assert.Equal(t, "上海市", req.Destination)
}

func TestIsRemoteArea(t *testing.T) {
	assert.True(t, isRemoteArea("西藏自治区"))
	assert.True(t, isRemoteArea("新疆维吾尔自治区"))
	assert.False(t, isRemoteArea("上海市"))
}

func TestRoundToStep(t *testing.T) {
	assert.Equal(t, 1.0, roundToStep(0.8, 0.5))
	assert.Equal(t, 0.5, roundToStep(0.3, 0.5))
	assert.Equal(t, 1.2, roundToStep(1.2, 0))
}

func TestRequestCacheKeyBucketsNearIdenticalRequests(t *testing.T) {
	a := Request{Origin: "北京", Destination: "上海", WeightKg: 1.1, ServiceLevel: "standard"}
	b := Request{Origin: "北京市", Destination: "上海市", WeightKg: 1.2, ServiceLevel: "STANDARD"}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}
