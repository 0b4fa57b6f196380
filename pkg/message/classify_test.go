package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testOrderKeywords   = []string{"下单", "已付款"}
	testKeywordReplies  = map[string]string{"包邮": "默认不包邮"}
	testOfferedCouriers = []string{"顺丰", "中通"}
)

func TestClassifyOrderTakesPriorityOverKeyword(t *testing.T) {
	got := Classify("我已付款，麻烦发货，顺便问下包邮吗", testOrderKeywords, testKeywordReplies, nil)
	assert.Equal(t, IntentOrder, got)
}

func TestClassifyCourierChoiceRequiresPriorOffer(t *testing.T) {
	// Never quoted in this session, so "顺丰" in the text is not a courier
	// pick — it falls through to quote-intent / keyword / unknown.
	got := Classify("麻烦发顺丰", testOrderKeywords, testKeywordReplies, nil)
	assert.NotEqual(t, IntentCourierChoice, got)

	got = Classify("麻烦发顺丰", testOrderKeywords, testKeywordReplies, testOfferedCouriers)
	assert.Equal(t, IntentCourierChoice, got)
}

func TestClassifyQuoteQuestion(t *testing.T) {
	got := Classify("这个运费多少", testOrderKeywords, testKeywordReplies, nil)
	assert.Equal(t, IntentQuote, got)
}

func TestClassifyKeywordReply(t *testing.T) {
	got := Classify("可以包邮不", testOrderKeywords, testKeywordReplies, nil)
	assert.Equal(t, IntentKeyword, got)
}

func TestClassifyUnknown(t *testing.T) {
	got := Classify("你好呀", testOrderKeywords, testKeywordReplies, nil)
	assert.Equal(t, IntentUnknown, got)
}

func TestKeywordReplyLookup(t *testing.T) {
	reply, ok := KeywordReply("可以包邮不", testKeywordReplies)
	assert.True(t, ok)
	assert.Equal(t, "默认不包邮", reply)

	_, ok = KeywordReply("你好", testKeywordReplies)
	assert.False(t, ok)
}

func TestMatchOfferedCourier(t *testing.T) {
	name, ok := MatchOfferedCourier("那就用中通吧", testOfferedCouriers)
	assert.True(t, ok)
	assert.Equal(t, "中通", name)

	_, ok = MatchOfferedCourier("那就用邮政吧", testOfferedCouriers)
	assert.False(t, ok)
}
