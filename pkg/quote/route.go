package quote

import (
	"fmt"
	"regexp"
	"strings"
)

var aliasMap = map[string]string{
	"北京": "北京市", "北京市": "北京市",
	"上海": "上海市", "上海市": "上海市",
	"天津": "天津市", "天津市": "天津市",
	"重庆": "重庆市", "重庆市": "重庆市",
	"内蒙": "内蒙古自治区", "内蒙古": "内蒙古自治区",
	"新疆": "新疆维吾尔自治区",
	"广西": "广西壮族自治区",
	"宁夏": "宁夏回族自治区",
	"西藏": "西藏自治区",
	"香港": "香港特别行政区",
	"澳门": "澳门特别行政区",
}

var suffixRe = regexp.MustCompile(`(省|市|区|县|自治区|自治州|地区|特别行政区)$`)

// remoteAreaPrefixes are provinces whose deliveries incur the fallback
// template's remote-area surcharge.
var remoteAreaPrefixes = []string{"西藏", "新疆", "青海"}

// normalizeLocation resolves common province/city aliases and strips
// administrative suffixes so "北京" and "北京市" collapse to the same key.
func normalizeLocation(raw string) string {
	text := strings.Join(strings.Fields(strings.TrimSpace(raw)), "")
	if text == "" {
		return ""
	}
	if v, ok := aliasMap[text]; ok {
		return v
	}
	base := suffixRe.ReplaceAllString(text, "")
	if v, ok := aliasMap[base]; ok {
		return v
	}
	if base == "" {
		return text
	}
	return base
}

func normalizeRequest(r Request) Request {
	r.Origin = normalizeLocation(r.Origin)
	r.Destination = normalizeLocation(r.Destination)
	r.ServiceLevel = strings.ToLower(strings.TrimSpace(r.ServiceLevel))
	if r.ServiceLevel == "" {
		r.ServiceLevel = "standard"
	}
	r.Courier = strings.ToLower(strings.TrimSpace(r.Courier))
	if r.Courier == "" {
		r.Courier = "auto"
	}
	return r
}

func isRemoteArea(province string) bool {
	for _, p := range remoteAreaPrefixes {
		if strings.HasPrefix(province, p) {
			return true
		}
	}
	return false
}

func roundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return float64(int64(value/step+0.5)) * step
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.1f", f)
}

func joinLower(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "|"))
}
