package main

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentity(t *testing.T) RelayIdentity {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return RelayIdentity{SecretHex: sk, PubkeyHex: pk}
}

func signedTestEvent(t *testing.T, identity RelayIdentity, kind int, content string) *nostr.Event {
	t.Helper()
	ev, err := signEvent(identity, kind, nostr.Tags{}, content)
	require.NoError(t, err)
	return ev
}

func TestEventStoreEvictsFIFO(t *testing.T) {
	identity := newTestIdentity(t)
	store := NewEventStore(3)

	var ids []string
	for i := 0; i < 5; i++ {
		ev := signedTestEvent(t, identity, 1, "hello")
		store.Add(ev)
		ids = append(ids, ev.ID)
	}

	assert.Equal(t, 3, store.Len())
	_, ok := store.Get(ids[0])
	assert.False(t, ok, "oldest event should have been evicted")
	_, ok = store.Get(ids[4])
	assert.True(t, ok, "newest event should remain")
}

func TestEventStoreQueryByID(t *testing.T) {
	identity := newTestIdentity(t)
	store := NewEventStore(10)
	ev := signedTestEvent(t, identity, 1, "hello")
	store.Add(ev)

	results := store.Query(nostr.Filters{{IDs: []string{ev.ID}}})
	require.Len(t, results, 1)
	assert.Equal(t, ev.ID, results[0].ID)
}

func TestEventStoreQueryRespectsLimit(t *testing.T) {
	identity := newTestIdentity(t)
	store := NewEventStore(100)
	for i := 0; i < 10; i++ {
		store.Add(signedTestEvent(t, identity, 1, "hello"))
	}

	results := store.Query(nostr.Filters{{Kinds: []int{1}, Limit: 4}})
	assert.Len(t, results, 4)
}

func TestEventStoreCountMatchesQueryLength(t *testing.T) {
	identity := newTestIdentity(t)
	store := NewEventStore(100)
	for i := 0; i < 6; i++ {
		store.Add(signedTestEvent(t, identity, 1, "hello"))
	}

	filters := nostr.Filters{{Kinds: []int{1}}}
	assert.EqualValues(t, len(store.Query(filters)), store.Count(filters))
}
