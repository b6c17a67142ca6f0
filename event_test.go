package main

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignEventRoundTripsThroughVerify(t *testing.T) {
	identity := newTestIdentity(t)
	ev, err := signEvent(identity, KindPriceResponse, nostr.Tags{{"pair", "BTC-USD"}}, `{"value":1}`)
	require.NoError(t, err)
	assert.NoError(t, verifyEvent(ev))
}

func TestVerifyEventRejectsTamperedContent(t *testing.T) {
	identity := newTestIdentity(t)
	ev, err := signEvent(identity, KindPriceResponse, nostr.Tags{}, `{"value":1}`)
	require.NoError(t, err)

	ev.Content = `{"value":2}`
	assert.ErrorIs(t, verifyEvent(ev), errBadID)
}

func TestVerifyEventRejectsBadSignature(t *testing.T) {
	identity := newTestIdentity(t)
	ev, err := signEvent(identity, KindPriceResponse, nostr.Tags{}, `{"value":1}`)
	require.NoError(t, err)

	other := newTestIdentity(t)
	otherEv, err := signEvent(other, KindPriceResponse, nostr.Tags{}, `{"value":1}`)
	require.NoError(t, err)
	ev.Sig = otherEv.Sig

	assert.ErrorIs(t, verifyEvent(ev), errBadSig)
}

func TestPriceResponseTagsListEachSource(t *testing.T) {
	tags := priceResponseTags("req-id", "req-pub", "BTC-USD", []string{"coinbase", "kraken"})

	var srcCount int
	for _, tag := range tags {
		if tag[0] == "src" {
			srcCount++
		}
	}
	assert.Equal(t, 2, srcCount)
}

func TestMarshalContentProducesValidJSON(t *testing.T) {
	payload := PriceErrorPayload{Error: "unsupported pair", Pair: "ETH-USD"}
	raw := marshalContent(payload)
	assert.Contains(t, raw, `"error":"unsupported pair"`)
	assert.Contains(t, raw, `"pair":"ETH-USD"`)
}
