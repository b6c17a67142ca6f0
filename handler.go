package main

import (
	"context"
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// PriceRequestContent is the best-effort-parsed content of a KIND_PRICE_REQ
// event, per spec.md §4.7 step 1.
type PriceRequestContent struct {
	Pair     string          `json:"pair"`
	Method   AggregateMethod `json:"method"`
	Sources  []string        `json:"sources"`
	MaxAgeMs int64           `json:"maxAgeMs"`
}

const supportedPair = "BTC-USD"

// RequestHandler orchestrates C1-C6 for accepted KIND_PRICE_REQ events,
// grounded on the teacher's predict.go / demo.go request-then-emit shape,
// generalized to the fetch/cache/aggregate pipeline this domain needs.
type RequestHandler struct {
	identity  RelayIdentity
	store     *EventStore
	cache     *PriceCache
	fetchers  *Fetchers
	minQuorum int
	maxAgeCap int64
	log       *logrus.Logger
	broadcast func(*nostr.Event)
}

// NewRequestHandler builds a handler wired to the shared cache, store, and
// fetcher pool. broadcast is invoked for every relay-signed event so C8 can
// fan it out to all connections.
func NewRequestHandler(identity RelayIdentity, store *EventStore, cache *PriceCache, fetchers *Fetchers, minQuorum int, maxAgeCapMs int64, log *logrus.Logger, broadcast func(*nostr.Event)) *RequestHandler {
	return &RequestHandler{
		identity:  identity,
		store:     store,
		cache:     cache,
		fetchers:  fetchers,
		minQuorum: minQuorum,
		maxAgeCap: maxAgeCapMs,
		log:       log,
		broadcast: broadcast,
	}
}

// parseRequestContent applies the defaulting rules from spec.md §4.7 step 1:
// missing or invalid fields fall back to defaults, and maxAgeMs is clamped
// to maxAgeCap.
func (h *RequestHandler) parseRequestContent(raw string) PriceRequestContent {
	content := PriceRequestContent{
		Pair:     supportedPair,
		Method:   MethodTrimmedMean,
		Sources:  ALLSources,
		MaxAgeMs: 20000,
	}

	var parsed PriceRequestContent
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		if parsed.Pair != "" {
			content.Pair = parsed.Pair
		}
		if parsed.Method != "" {
			content.Method = parsed.Method
		}
		if len(parsed.Sources) > 0 {
			content.Sources = parsed.Sources
		}
		if parsed.MaxAgeMs > 0 {
			content.MaxAgeMs = parsed.MaxAgeMs
		}
	}

	if content.MaxAgeMs > h.maxAgeCap {
		content.MaxAgeMs = h.maxAgeCap
	}
	return content
}

// Handle processes a single accepted KIND_PRICE_REQ event per the 5-step
// flow in spec.md §4.7, emitting exactly one terminal event.
func (h *RequestHandler) Handle(ctx context.Context, req *nostr.Event) {
	content := h.parseRequestContent(req.Content)

	if content.Pair != supportedPair {
		h.emitError(req, PriceErrorPayload{Error: "unsupported pair", Pair: content.Pair}, content.Pair, nil)
		return
	}

	now := nowMs()
	if entry, ok := h.cache.FreshEnough(content.Pair, now, content.MaxAgeMs); ok {
		h.emitResponse(req, content, entry, true, now-entry.TSMs)
		return
	}

	sources := recognizedSources(content.Sources)

	entry, err := h.cache.Fetch(ctx, content.Pair, now, content.MaxAgeMs, func(fetchCtx context.Context) (CacheEntry, error) {
		samples := h.fetchers.FetchAll(fetchCtx, sources)
		return CacheEntry{TSMs: nowMs(), Samples: samples}, nil
	})
	if err != nil {
		h.log.WithError(err).Warn("price fetch round failed")
		h.emitError(req, PriceErrorPayload{Error: "insufficient quorum", Need: h.minQuorum, Got: 0, SourcesRequested: sources}, content.Pair, sources)
		return
	}

	if len(entry.Samples) < h.minQuorum {
		h.emitError(req, PriceErrorPayload{
			Error:            "insufficient quorum",
			Need:             h.minQuorum,
			Got:              len(entry.Samples),
			SourcesRequested: sources,
		}, content.Pair, sources)
		return
	}

	h.emitResponse(req, content, entry, false, nowMs()-entry.TSMs)
}

// recognizedSources filters requested to the recognized set, falling back
// to ALLSources if the filtered set is empty, per spec.md §4.7 step 4.
func recognizedSources(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if _, ok := sourceTable[s]; ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return ALLSources
	}
	return out
}

func (h *RequestHandler) emitError(req *nostr.Event, payload PriceErrorPayload, pair string, sourcesRequested []string) {
	if payload.Pair == "" {
		payload.Pair = pair
	}
	tags := priceErrorTags(req.ID, req.PubKey, pair)
	ev, err := signEvent(h.identity, KindPriceError, tags, marshalContent(payload))
	if err != nil {
		h.log.WithError(err).Error("failed to sign price-error event")
		return
	}
	h.store.Add(ev)
	h.broadcast(ev)
}

func (h *RequestHandler) emitResponse(req *nostr.Event, content PriceRequestContent, entry CacheEntry, cacheHit bool, ageMs int64) {
	result, err := Aggregate(entry.Samples, content.Method)
	if err != nil {
		h.log.WithError(err).Error("aggregation failed despite quorum")
		h.emitError(req, PriceErrorPayload{Error: "insufficient quorum", Need: h.minQuorum, Got: len(entry.Samples)}, content.Pair, content.Sources)
		return
	}

	usedSources := make([]string, len(result.UsedSamples))
	for i, s := range result.UsedSamples {
		usedSources[i] = s.Source
	}

	payload := PriceResponsePayload{
		Pair:        content.Pair,
		TS:          nowMs(),
		Value:       result.Value,
		Method:      string(result.Method),
		SourcesUsed: usedSources,
		Samples:     entry.Samples,
		Cache:       CacheInfo{Hit: cacheHit, AgeMs: ageMs},
	}

	tags := priceResponseTags(req.ID, req.PubKey, content.Pair, usedSources)
	ev, err := signEvent(h.identity, KindPriceResponse, tags, marshalContent(payload))
	if err != nil {
		h.log.WithError(err).Error("failed to sign price-response event")
		return
	}
	h.store.Add(ev)
	h.broadcast(ev)
}
