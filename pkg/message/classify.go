package message

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Classify assigns an Intent to inbound text, checking order confirmation
// first (highest priority: a buyer who already paid must never be quoted
// again), then courier choice, then quote intent, then the configured
// keyword-reply catalogue.
//
// Courier choice is matched against offeredCouriers — the names extracted
// from this session's own prior quote reply and memoized in its session
// state (§4.5 step 2) — rather than a fixed global brand list, so a
// session that was never quoted cannot be mistaken into "picking" a
// courier it was never offered.
func Classify(text string, orderKeywords []string, keywordReplies map[string]string, offeredCouriers []string) Intent {
	for _, kw := range orderKeywords {
		if strings.Contains(text, kw) {
			return IntentOrder
		}
	}
	if _, ok := MatchOfferedCourier(text, offeredCouriers); ok {
		return IntentCourierChoice
	}
	if DetectQuoteIntent(text, "") {
		return IntentQuote
	}
	lower := strings.ToLower(text)
	for kw := range keywordReplies {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return IntentKeyword
		}
	}
	return IntentUnknown
}

// MatchOfferedCourier reports the first name from offered that appears in
// text, so a caller can both classify courier-choice intent and know
// which courier the buyer picked.
func MatchOfferedCourier(text string, offered []string) (string, bool) {
	for _, name := range offered {
		if name != "" && strings.Contains(text, name) {
			return name, true
		}
	}
	return "", false
}

// KeywordReply looks up the configured canned reply for the first matching
// keyword, trying longer keywords first (ties in alphabetical order);
// callers should only call this after Classify returned IntentKeyword.
func KeywordReply(text string, keywordReplies map[string]string) (string, bool) {
	lower := strings.ToLower(text)
	keys := make([]string, 0, len(keywordReplies))
	for kw := range keywordReplies {
		keys = append(keys, kw)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	for _, kw := range keys {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return keywordReplies[kw], true
		}
	}
	return "", false
}
