package main

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// RelayIdentity is the process-wide signing key. It is read-only after
// initialization and discarded on exit (never persisted), per spec.md §3
// and §9's note that RELAY_PRIVKEY_HEX/RELAY_PUBKEY_HEX exist but were
// left unwired in the source — this implementation wires them.
type RelayIdentity struct {
	SecretHex string
	PubkeyHex string
}

// NewRelayIdentity honors RELAY_PRIVKEY_HEX/RELAY_PUBKEY_HEX if set
// (accepting either raw hex or bech32 nsec/npub via nip19, the same
// decode-or-passthrough idiom as the teacher's decodeKey), otherwise
// generates a fresh keypair.
func NewRelayIdentity(cfg Config) (RelayIdentity, error) {
	if cfg.RelayPrivkeyHex == "" {
		sk := nostr.GeneratePrivateKey()
		pk, err := nostr.GetPublicKey(sk)
		if err != nil {
			return RelayIdentity{}, fmt.Errorf("derive pubkey from generated key: %w", err)
		}
		return RelayIdentity{SecretHex: sk, PubkeyHex: pk}, nil
	}

	sk, err := decodeSecret(cfg.RelayPrivkeyHex)
	if err != nil {
		return RelayIdentity{}, fmt.Errorf("RELAY_PRIVKEY_HEX: %w", err)
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return RelayIdentity{}, fmt.Errorf("derive pubkey from RELAY_PRIVKEY_HEX: %w", err)
	}

	if cfg.RelayPubkeyHex != "" {
		want, err := decodePubkey(cfg.RelayPubkeyHex)
		if err != nil {
			return RelayIdentity{}, fmt.Errorf("RELAY_PUBKEY_HEX: %w", err)
		}
		if want != pk {
			return RelayIdentity{}, fmt.Errorf("RELAY_PUBKEY_HEX does not match RELAY_PRIVKEY_HEX")
		}
	}

	return RelayIdentity{SecretHex: sk, PubkeyHex: pk}, nil
}

func decodeSecret(raw string) (string, error) {
	if strings.HasPrefix(raw, "nsec") {
		_, v, err := nip19.Decode(raw)
		if err != nil {
			return "", fmt.Errorf("nip19 decode: %w", err)
		}
		sk, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("nsec did not decode to a secret key")
		}
		return sk, nil
	}
	return raw, nil
}

func decodePubkey(raw string) (string, error) {
	if strings.HasPrefix(raw, "npub") {
		_, v, err := nip19.Decode(raw)
		if err != nil {
			return "", fmt.Errorf("nip19 decode: %w", err)
		}
		pk, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("npub did not decode to a pubkey")
		}
		return pk, nil
	}
	return raw, nil
}
