package message

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
)

// quoteIntentKeywords mirrors QuoteService.QUOTE_KEYWORDS: any of these
// appearing in the message or item title marks it as a quote request.
var quoteIntentKeywords = []string{
	"报价", "报个价", "多少钱", "运费", "邮费", "快递费",
	"寄到", "发到", "寄件", "快递", "时效", "多久到",
}

var urgencyKeywords = []string{"加急", "急件", "当天", "立即", "马上", "最快", "尽快"}

var destinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:寄到|发到|送到|到)\s*([\p{Han}]{2,12}(?:省|市|区|县)?)`),
	regexp.MustCompile(`收件(?:地|地址)?[:：\s]*([\p{Han}]{2,12}(?:省|市|区|县)?)`),
	regexp.MustCompile(`目的地[:：\s]*([\p{Han}]{2,12}(?:省|市|区|县)?)`),
}

var (
	weightRe         = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|公斤|斤|g|克)`)
	weightFallbackRe = regexp.MustCompile(`重量[:：\s]*(\d+(?:\.\d+)?)`)
	piecesRe         = regexp.MustCompile(`(\d+)\s*(?:件|票|单)`)
	// volumeDimsRe and explicitVolumeWeightRe extract the L x W x H / 体积重
	// shapes spec.md's quote-intent parsing adds beyond what the original
	// QuoteService extracts (it has no volume handling at all).
	volumeDimsRe          = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*[x×*]\s*(\d+(?:\.\d+)?)\s*[x×*]\s*(\d+(?:\.\d+)?)\s*cm`)
	explicitVolumeWeightRe = regexp.MustCompile(`体积重\s*(\d+(?:\.\d+)?)\s*kg`)
	greetingRe            = regexp.MustCompile(`^[\s你好您好hi嗨哈喽在吗呀啊\?？!！。.,，~～]{1,12}$`)
)

// DetectQuoteIntent reports whether text (optionally combined with the
// item title) contains any quote keyword, grounded on
// QuoteService.detect_quote_intent.
func DetectQuoteIntent(text, itemTitle string) bool {
	merged := strings.ToLower(text + " " + itemTitle)
	for _, kw := range quoteIntentKeywords {
		if strings.Contains(merged, kw) {
			return true
		}
	}
	return false
}

// ParsedQuoteRequest is the outcome of parsing a buyer's quote-intent
// message: a best-effort quote.Request plus which required fields
// (destination, weight) could not be extracted.
type ParsedQuoteRequest struct {
	Request       quote.Request
	MissingFields []string
	IsGreeting    bool
}

// Reason reports the bookkeeping tag for a missing-fields reply: "greeting"
// when the buyer's text carried no shippable detail at all, else
// "missing_fields" — matching §4.5 step 3's two format_enforced reasons.
func (p ParsedQuoteRequest) Reason() string {
	if p.IsGreeting {
		return "greeting"
	}
	return "missing_fields"
}

// ParseQuoteRequest extracts a shipping quote request from buyer text.
// Destination, weight (with kg/公斤/斤/g/克 unit conversion), pieces, and
// urgency are grounded on QuoteService's private extraction helpers;
// volume (LxWxH cm and explicit 体积重 <n>kg) is this module's own addition
// since the original has no volume parsing to ground on.
func ParseQuoteRequest(text, originCity string) ParsedQuoteRequest {
	destination := extractDestinationCity(text)
	weightKg := extractWeightKg(text)
	volumeCC, volumeWeightKg := extractVolume(text)
	pieces := extractPieces(text)
	urgency := isUrgencyRequest(text)

	req := quote.Request{
		Origin:         originCity,
		Destination:    destination,
		WeightKg:       weightKg,
		VolumeCC:       volumeCC,
		VolumeWeightKg: volumeWeightKg,
		ServiceLevel:   "standard",
		Courier:        "auto",
	}
	if urgency {
		req.ServiceLevel = "urgent"
		req.TimeWindow = "urgent"
	}
	if pieces > 1 {
		req.ItemType = "multi_piece"
	}

	var missing []string
	if destination == "" {
		missing = append(missing, "destination_city")
	}
	if weightKg <= 0 {
		missing = append(missing, "weight_kg")
	}

	return ParsedQuoteRequest{
		Request:       req,
		MissingFields: missing,
		IsGreeting:    len(missing) > 0 && greetingRe.MatchString(strings.TrimSpace(text)),
	}
}

// missingFieldLabels mirrors build_first_reply's missing_labels map.
var missingFieldLabels = map[string]string{
	"destination_city": "收件城市",
	"weight_kg":         "预估重量（kg）",
}

// BuildQuoteFormatHintReply composes the canonical format-hint reply for a
// quote request missing required fields, grounded on build_first_reply —
// reworded to surface the literal phrase "询价格式" the format hint is
// named after.
func BuildQuoteFormatHintReply(parsed ParsedQuoteRequest) string {
	if len(parsed.MissingFields) == 0 {
		return ""
	}
	labels := make([]string, 0, len(parsed.MissingFields))
	for _, field := range parsed.MissingFields {
		if label, ok := missingFieldLabels[field]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, field)
		}
	}
	return "您好，我们的询价格式需要补充：" + strings.Join(labels, "、") + "。信息补齐后我会马上回复具体价格。"
}

func extractDestinationCity(text string) string {
	for _, re := range destinationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func extractWeightKg(text string) float64 {
	if m := weightRe.FindStringSubmatch(text); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			switch strings.ToLower(m[2]) {
			case "kg", "公斤":
				return math.Max(value, 0.1)
			case "斤":
				return math.Max(value*0.5, 0.1)
			case "g", "克":
				return math.Max(value/1000.0, 0.1)
			}
		}
	}
	if m := weightFallbackRe.FindStringSubmatch(text); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			return math.Max(value, 0.1)
		}
	}
	return 0
}

func extractVolume(text string) (volumeCC float64, volumeWeightKg float64) {
	if m := explicitVolumeWeightRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			volumeWeightKg = v
		}
	}
	if m := volumeDimsRe.FindStringSubmatch(text); m != nil {
		l, errL := strconv.ParseFloat(m[1], 64)
		w, errW := strconv.ParseFloat(m[2], 64)
		h, errH := strconv.ParseFloat(m[3], 64)
		if errL == nil && errW == nil && errH == nil {
			volumeCC = l * w * h
		}
	}
	return volumeCC, volumeWeightKg
}

func extractPieces(text string) int {
	if m := piecesRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 1 {
			return v
		}
	}
	return 1
}

func isUrgencyRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
