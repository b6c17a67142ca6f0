package main

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Nostr event kinds this relay understands beyond the generic NIP-01
// surface. Any other kind is accepted and stored but never triggers
// price work, per spec.md §3.
const (
	KindPriceRequest  = 38000
	KindPriceResponse = 38001
	KindPriceError    = 38002
)

// signEvent builds and signs an event under the relay's identity. created_at
// is derived from the current wall clock, per spec.md §4.1. The relay never
// alters a signed client event — this path is only ever used for
// relay-originated events.
func signEvent(identity RelayIdentity, kind int, tags nostr.Tags, content string) (*nostr.Event, error) {
	ev := &nostr.Event{
		PubKey:    identity.PubkeyHex,
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(identity.SecretHex); err != nil {
		return nil, fmt.Errorf("sign event kind %d: %w", kind, err)
	}
	return ev, nil
}

// verifyEvent recomputes the canonical id and checks the BIP-340 Schnorr
// signature, per spec.md §4.1. The three failure classes map directly onto
// AuthError handling in the connection loop (C8).
func verifyEvent(ev *nostr.Event) error {
	if !ev.CheckID() {
		return errBadID
	}
	ok, err := ev.CheckSignature()
	if err != nil || !ok {
		return errBadSig
	}
	return nil
}

var (
	errBadID  = fmt.Errorf("bad id")
	errBadSig = fmt.Errorf("bad sig")
)

// priceErrorTags builds the tag set for a KIND_PRICE_ERR reply, per
// spec.md §4.7 step 2/4.
func priceErrorTags(reqID, reqPubkey, pair string) nostr.Tags {
	return nostr.Tags{
		{"e", reqID, "reply"},
		{"p", reqPubkey},
		{"t", "price-error"},
		{"pair", pair},
	}
}

// priceResponseTags builds the tag set for a KIND_PRICE_RES reply, listing
// one "src" tag per contributing sample, per spec.md §4.7's response schema.
func priceResponseTags(reqID, reqPubkey, pair string, usedSources []string) nostr.Tags {
	tags := nostr.Tags{
		{"e", reqID, "reply"},
		{"p", reqPubkey},
		{"t", "price"},
		{"pair", pair},
	}
	for _, s := range usedSources {
		tags = append(tags, nostr.Tag{"src", s})
	}
	return tags
}

// PriceErrorPayload is the JSON content of a KIND_PRICE_ERR event.
type PriceErrorPayload struct {
	Error             string   `json:"error"`
	Pair              string   `json:"pair,omitempty"`
	Need              int      `json:"need,omitempty"`
	Got               int      `json:"got,omitempty"`
	SourcesRequested  []string `json:"sources_requested,omitempty"`
}

// CacheInfo describes whether a response was served from the price cache.
type CacheInfo struct {
	Hit   bool  `json:"hit"`
	AgeMs int64 `json:"ageMs"`
}

// PriceResponsePayload is the JSON content of a KIND_PRICE_RES event.
type PriceResponsePayload struct {
	Pair         string        `json:"pair"`
	TS           int64         `json:"ts"`
	Value        float64       `json:"value"`
	Method       string        `json:"method"`
	SourcesUsed  []string      `json:"sources_used"`
	Samples      []PriceSample `json:"samples"`
	Cache        CacheInfo     `json:"cache"`
}

func marshalContent(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only occurs for non-serializable content, which none of our
		// payload types are; surface a minimal JSON object rather than panic.
		return `{"error":"internal: failed to encode payload"}`
	}
	return string(b)
}
