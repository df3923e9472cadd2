package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLookupLastWriteWins tests that re-adding replaces the title per (host, port)
func TestLookupLastWriteWins(t *testing.T) {
	s := New()
	s.Add(1, "old", "a", 6000)
	s.Add(1, "new", "a", 6000)
	s.Add(1, "other", "b", 6000)

	entries := s.Lookup(1)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Number: 1, Title: "new", Host: "a", Port: 6000}, entries[0])
	assert.Equal(t, "b", entries[1].Host)
}

func TestAddReturnsAllEntriesForNumber(t *testing.T) {
	s := New()
	s.Add(7, "seven", "b", 1)
	entries := s.Add(7, "seven", "a", 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Host)
}

// TestUnregisterPurges tests that a departing sole advertiser removes its numbers
func TestUnregisterPurges(t *testing.T) {
	s := New()
	s.RegisterPeer("a", 6000)
	s.Add(1, "one", "a", 6000)
	s.Add(2, "two", "a", 6000)
	s.Add(2, "two", "b", 6001)

	purged := s.UnregisterPeer("a", 6000)
	assert.Equal(t, []int{1, 2}, purged)

	assert.Empty(t, s.Lookup(1))
	all := s.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, Entry{Number: 2, Title: "two", Host: "b", Port: 6001}, all[0])

	assert.Empty(t, s.UnregisterPeer("a", 6000), "second unregister is a no-op")
}

func TestListAllOrdering(t *testing.T) {
	s := New()
	s.Add(30, "c", "z", 1)
	s.Add(10, "a", "b", 2)
	s.Add(10, "a", "b", 1)
	s.Add(10, "a", "a", 9)
	s.Add(20, "b", "a", 1)

	var got []string
	for _, e := range s.ListAll() {
		got = append(got, fmt.Sprintf("%d/%s/%d", e.Number, e.Host, e.Port))
	}
	assert.Equal(t, []string{"10/a/9", "10/b/1", "10/b/2", "20/a/1", "30/z/1"}, got)
}

func TestRegisterPeerIdempotent(t *testing.T) {
	s := New()
	var events []Event
	s.SetListener(func(e Event) { events = append(events, e) })

	s.RegisterPeer("a", 1)
	s.RegisterPeer("a", 1)
	assert.Len(t, events, 1)
	assert.Equal(t, Stats{Peers: 1}, s.Stats())
}

func TestListenerEvents(t *testing.T) {
	s := New()
	var kinds []EventKind
	s.SetListener(func(e Event) {
		kinds = append(kinds, e.Kind)
		// listener runs outside the lock
		s.Stats()
	})

	s.Add(1, "one", "a", 1)
	s.UnregisterPeer("a", 1)
	assert.Equal(t, []EventKind{EventPeerRegistered, EventAdded, EventRemoved, EventPeerUnregistered}, kinds)
}

// TestConcurrentAccess tests that concurrent adds and unregisters keep both maps consistent
func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				s.Add(n, "t", "host", port)
				s.Lookup(n)
			}
			if port%2 == 0 {
				s.UnregisterPeer("host", port)
			}
		}(p)
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, 4, stats.Peers)
	assert.Equal(t, 50, stats.Numbers)
	assert.Equal(t, 200, stats.Entries)
	for _, e := range s.ListAll() {
		assert.Equal(t, 1, e.Port%2)
	}
}
