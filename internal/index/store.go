// CRC: crc-IndexStore.md, Spec: main.md
package index

import (
	"sort"
	"sync"
)

// Entry advertises that a peer hosts file Number under Title
type Entry struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// PeerKey identifies a peer by its upload endpoint
type PeerKey struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventKind classifies index changes
type EventKind string

const (
	EventAdded            EventKind = "added"
	EventRemoved          EventKind = "removed"
	EventPeerRegistered   EventKind = "peer-registered"
	EventPeerUnregistered EventKind = "peer-unregistered"
)

// Event describes one change to the index
type Event struct {
	Kind  EventKind `json:"kind"`
	Entry *Entry    `json:"entry,omitempty"`
	Peer  PeerKey   `json:"peer"`
}

// Stats summarizes the index
type Stats struct {
	Peers   int `json:"peers"`
	Numbers int `json:"numbers"`
	Entries int `json:"entries"`
}

// Store is the authoritative directory: number -> peer -> title, plus the
// reverse peer -> numbers map used to purge a departing peer.
// CRC: crc-IndexStore.md
type Store struct {
	mu       sync.Mutex
	records  map[int]map[PeerKey]string
	peerRFCs map[PeerKey]map[int]struct{}
	listener func(Event)
}

// New creates an empty store
func New() *Store {
	return &Store{
		records:  make(map[int]map[PeerKey]string),
		peerRFCs: make(map[PeerKey]map[int]struct{}),
	}
}

// SetListener installs a callback for index changes.
// The callback runs after the store lock is released.
func (s *Store) SetListener(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Store) emit(listener func(Event), events []Event) {
	if listener == nil {
		return
	}
	for _, e := range events {
		listener(e)
	}
}

// RegisterPeer records a peer; registering twice has no further effect
func (s *Store) RegisterPeer(host string, port int) {
	key := PeerKey{Host: host, Port: port}

	s.mu.Lock()
	_, known := s.peerRFCs[key]
	if !known {
		s.peerRFCs[key] = make(map[int]struct{})
	}
	listener := s.listener
	s.mu.Unlock()

	if !known {
		s.emit(listener, []Event{{Kind: EventPeerRegistered, Peer: key}})
	}
}

// UnregisterPeer drops the peer and every entry it advertised.
// It returns the purged file numbers in ascending order.
func (s *Store) UnregisterPeer(host string, port int) []int {
	key := PeerKey{Host: host, Port: port}

	s.mu.Lock()
	numbers, known := s.peerRFCs[key]
	if !known {
		s.mu.Unlock()
		return nil
	}
	delete(s.peerRFCs, key)

	purged := make([]int, 0, len(numbers))
	var events []Event
	for n := range numbers {
		purged = append(purged, n)
		peers := s.records[n]
		if title, ok := peers[key]; ok {
			events = append(events, Event{Kind: EventRemoved, Peer: key, Entry: &Entry{Number: n, Title: title, Host: host, Port: port}})
			delete(peers, key)
		}
		if len(peers) == 0 {
			delete(s.records, n)
		}
	}
	listener := s.listener
	s.mu.Unlock()

	sort.Ints(purged)
	sort.Slice(events, func(i, j int) bool { return events[i].Entry.Number < events[j].Entry.Number })
	events = append(events, Event{Kind: EventPeerUnregistered, Peer: key})
	s.emit(listener, events)
	return purged
}

// Add inserts or replaces the entry for (n, host, port) and returns every
// entry for n. The peer is registered implicitly.
func (s *Store) Add(n int, title, host string, port int) []Entry {
	key := PeerKey{Host: host, Port: port}

	s.mu.Lock()
	peers := s.records[n]
	if peers == nil {
		peers = make(map[PeerKey]string)
		s.records[n] = peers
	}
	peers[key] = title

	events := []Event{{Kind: EventAdded, Peer: key, Entry: &Entry{Number: n, Title: title, Host: host, Port: port}}}
	numbers, known := s.peerRFCs[key]
	if !known {
		numbers = make(map[int]struct{})
		s.peerRFCs[key] = numbers
		events = append([]Event{{Kind: EventPeerRegistered, Peer: key}}, events...)
	}
	numbers[n] = struct{}{}

	result := entriesFor(n, peers)
	listener := s.listener
	s.mu.Unlock()

	s.emit(listener, events)
	return result
}

// Lookup returns the entries for n, ordered by (host, port)
func (s *Store) Lookup(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entriesFor(n, s.records[n])
}

// ListAll returns every entry ordered by number, then (host, port)
func (s *Store) ListAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	numbers := make([]int, 0, len(s.records))
	for n := range s.records {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var result []Entry
	for _, n := range numbers {
		result = append(result, entriesFor(n, s.records[n])...)
	}
	return result
}

// Stats counts registered peers, distinct numbers and entries
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Peers: len(s.peerRFCs), Numbers: len(s.records)}
	for _, peers := range s.records {
		stats.Entries += len(peers)
	}
	return stats
}

func entriesFor(n int, peers map[PeerKey]string) []Entry {
	result := make([]Entry, 0, len(peers))
	for key, title := range peers {
		result = append(result, Entry{Number: n, Title: title, Host: key.Host, Port: key.Port})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Host != result[j].Host {
			return result[i].Host < result[j].Host
		}
		return result[i].Port < result[j].Port
	})
	return result
}
