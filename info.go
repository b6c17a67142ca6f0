package main

import (
	"encoding/json"
	"net/http"
)

// RelayLimitations mirrors NIP-11's limitations object.
type RelayLimitations struct {
	MaxMessageLength int `json:"max_message_length"`
	MaxSubscriptions int `json:"max_subscriptions"`
	MaxFilters       int `json:"max_filters"`
	MaxLimit         int `json:"max_limit"`
}

// RelayInfo is the NIP-11 relay information document, per spec.md §4.8.
type RelayInfo struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Pubkey        string           `json:"pubkey"`
	Contact       string           `json:"contact"`
	SupportedNIPs []int            `json:"supported_nips"`
	Software      string           `json:"software"`
	Version       string           `json:"version"`
	Limitations   RelayLimitations `json:"limitations"`
}

const relaySoftwareURL = "https://github.com/nostr-relay/btcprice-relay"

// relayInfoHandler serves the NIP-11 document at GET /api/relay-info.
func relayInfoHandler(identity RelayIdentity, cfg Config) http.HandlerFunc {
	info := RelayInfo{
		Name:          "btcprice-relay",
		Description:   "Nostr-subset relay that aggregates BTC/USD price data from public exchanges and answers signed price requests.",
		Pubkey:        identity.PubkeyHex,
		Contact:       "",
		SupportedNIPs: []int{1, 11, 19},
		Software:      relaySoftwareURL,
		Version:       "0.1.0",
		Limitations: RelayLimitations{
			MaxMessageLength: cfg.MaxEventBytes,
			MaxSubscriptions: 20,
			MaxFilters:       10,
			MaxLimit:         hardFilterLimit,
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/nostr+json")
		_ = json.NewEncoder(w).Encode(info)
	}
}

// healthHandler serves GET /health.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// statsResponse backs the supplemental GET /api/stats endpoint, letting an
// operator glance at store occupancy without a Nostr client.
type statsResponse struct {
	StoredEvents int `json:"stored_events"`
	Capacity     int `json:"capacity"`
}

func statsHandler(store *EventStore, capacity int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsResponse{
			StoredEvents: store.Len(),
			Capacity:     capacity,
		})
	}
}
