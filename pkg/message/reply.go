package message

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
)

// DefaultQuoteReplyTemplate is the built-in reply shape, used whenever a
// configured override template is empty or fails to render. Grounded on
// QuoteModels.DEFAULT_QUOTE_REPLY_TEMPLATE.
const DefaultQuoteReplyTemplate = "您好，{origin} 到 {destination}，{courier} 预估报价 ¥{price}（{price_breakdown}）。预计时效约 {eta_days}。"

// validityClauseRe matches the Chinese "quote valid for N minutes" clause,
// grounded on _strip_validity_clause's regex.
var validityClauseRe = regexp.MustCompile(`[，,]?\s*报价有效期\s*\d+\s*分钟[。.]?`)

var collapseSpacesRe = regexp.MustCompile(`\s{2,}`)

// placeholderRe finds the {name} template placeholders compose_reply fills.
var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// surchargeOrder is the canonical display order for known surcharge keys;
// anything else falls back to a sorted suffix so the rendered
// price_breakdown is deterministic despite quote.Result.Surcharges being a
// plain Go map (Python's dict preserves insertion order, Go's does not).
var surchargeOrder = []string{"续重", "distance", "remote_area", "urgency"}

// ComposeQuoteReply renders a customer-facing message from a quote result
// by filling tmpl's {placeholder} fields (tmpl empty uses
// DefaultQuoteReplyTemplate). The validity clause is always stripped back
// out of the rendered text regardless of template content — grounded on
// QuoteModels.compose_reply, whose DEFAULT_QUOTE_REPLY_TEMPLATE never
// actually emits one, but _strip_validity_clause runs unconditionally on
// both the rendered and the fallback text so a custom template embedding
// one never leaks it to the buyer.
func ComposeQuoteReply(req quote.Request, result quote.Result, validityMinutes int, tmpl string) string {
	if tmpl == "" {
		tmpl = DefaultQuoteReplyTemplate
	}

	values := quoteReplyValues(req, result, validityMinutes)
	reply := renderTemplate(tmpl, values)
	if reply == "" {
		reply = renderTemplate(DefaultQuoteReplyTemplate, values)
	}

	return stripValidityClause(reply)
}

func quoteReplyValues(req quote.Request, result quote.Result, validityMinutes int) map[string]string {
	explain := result.Explain

	origin := explainString(explain, "matched_origin", "normalized_origin")
	if origin == "" {
		origin = firstNonEmpty(req.Origin, "寄件地")
	}
	destination := explainString(explain, "matched_destination", "normalized_destination")
	if destination == "" {
		destination = firstNonEmpty(req.Destination, "收件地")
	}
	courier := explainString(explain, "matched_courier", "courier")
	if courier == "" {
		courier = firstNonEmpty(req.Courier, "当前渠道")
	}

	billingWeight := explainFloat(explain, "billing_weight_kg")
	actualWeight := explainFloat(explain, "actual_weight_kg")
	volumeWeight := explainFloat(explain, "volume_weight_kg")
	additionalUnits := math.Max(0, billingWeight-1.0)

	volumeFormula := "体积重规则"
	if divisor := explainFloat(explain, "volume_divisor"); divisor > 0 {
		volumeFormula = fmt.Sprintf("体积(cm³)/%d", int(divisor))
	}

	return map[string]string{
		"origin":           origin,
		"destination":      destination,
		"origin_province":  origin,
		"dest_province":    destination,
		"origin_city":      origin,
		"dest_city":        destination,
		"weight":           formatAmount(req.WeightKg),
		"actual_weight":    formatAmount(actualWeight),
		"billing_weight":   formatAmount(billingWeight),
		"volume_weight":    formatAmount(volumeWeight),
		"additional_units": formatAmount(additionalUnits),
		"courier":          courier,
		"courier_name":     courier,
		"price":            formatAmount(result.TotalFee),
		"total_price":      formatAmount(result.TotalFee),
		"first_price":      formatAmount(result.BaseFee),
		"remaining_price":  formatAmount(result.Surcharges["续重"]),
		"currency":         firstNonEmpty(result.Currency, "元"),
		"price_breakdown":  priceBreakdown(result),
		"eta_days":         formatDaysFromMinutes(result.ETAMinutes),
		"validity_minutes": strconv.Itoa(validityMinutes),
		"volume_formula":   volumeFormula,
	}
}

// priceBreakdown renders "基础运费 ¥B.BB + name ¥V.VV + ..." in canonical
// surchage order, grounded on compose_reply's price_breakdown assembly.
func priceBreakdown(result quote.Result) string {
	parts := []string{fmt.Sprintf("基础运费 ¥%.2f", result.BaseFee)}

	seen := make(map[string]bool, len(result.Surcharges))
	for _, name := range surchargeOrder {
		if value, ok := result.Surcharges[name]; ok {
			parts = append(parts, fmt.Sprintf("%s ¥%.2f", name, value))
			seen[name] = true
		}
	}
	var rest []string
	for name := range result.Surcharges {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		parts = append(parts, fmt.Sprintf("%s ¥%.2f", name, result.Surcharges[name]))
	}
	return strings.Join(parts, " + ")
}

// renderTemplate fills {placeholder} fields from values; an unknown
// placeholder makes the whole render fail (returns ""), the same as a
// Python .format() KeyError, so the caller can fall back to the default
// template.
func renderTemplate(tmpl string, values map[string]string) string {
	var missing bool
	rendered := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := values[name]
		if !ok {
			missing = true
			return match
		}
		return value
	})
	if missing {
		return ""
	}
	return rendered
}

func explainString(explain map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := explain[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func explainFloat(explain map[string]any, key string) float64 {
	switch v := explain[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// formatDaysFromMinutes renders an ETA in minutes as a day count, grounded
// on _format_days_from_minutes: anything at or below zero is "1天";
// otherwise minutes/1440 floored at 1.0 day, rounded to one decimal, and
// printed without a trailing ".0" when the rounded value is a whole number.
func formatDaysFromMinutes(minutes int) string {
	raw := float64(minutes)
	if raw <= 0 {
		return "1天"
	}
	days := math.Max(1.0, raw/1440.0)
	rounded := math.Round(days*10) / 10
	if math.Abs(rounded-math.Round(rounded)) < 1e-9 {
		return fmt.Sprintf("%d天", int(math.Round(rounded)))
	}
	return fmt.Sprintf("%.1f天", rounded)
}

// stripValidityClause removes any "quote valid for N minutes" clause from a
// reply, collapses the resulting whitespace, and ensures the result ends in
// terminal punctuation — applied unconditionally, grounded on
// _strip_validity_clause (both its success and exception-fallback call
// sites strip the clause the same way).
func stripValidityClause(text string) string {
	stripped := validityClauseRe.ReplaceAllString(text, "")
	stripped = collapseSpacesRe.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return stripped
	}
	last := []rune(stripped)
	switch last[len(last)-1] {
	case '。', '！', '？', '!', '?':
		return stripped
	}
	return stripped + "。"
}
