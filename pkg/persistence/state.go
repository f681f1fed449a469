package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// PeerState is the content of the peer state file.
type PeerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Peers are the known peers, most recently connected first.
	Peers []KnownPeer `json:"peers,omitempty"`
}

// KnownPeer is a peer this node has been connected to.
type KnownPeer struct {
	// Address is the peer's canonical hardware address.
	Address string `json:"address"`

	// Name is the peer's device name, if it sent one.
	Name string `json:"name,omitempty"`

	// LastSessionID is the handover session of the last connection.
	LastSessionID string `json:"last_session_id,omitempty"`

	// FirstSeenAt is when the peer first connected.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// LastConnectedAt is when the peer last connected.
	LastConnectedAt time.Time `json:"last_connected_at"`

	// Connections counts sessions that reached CONNECTED.
	Connections int `json:"connections"`
}

// PeerStore manages persistence of known peers to a JSON file.
type PeerStore struct {
	mu   sync.Mutex
	path string
}

// NewPeerStore creates a new peer store.
func NewPeerStore(path string) *PeerStore {
	return &PeerStore{path: path}
}

// Save persists the state to disk.
func (s *PeerStore) Save(state *PeerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(state)
}

func (s *PeerStore) saveLocked(state *PeerState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Replace atomically.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *PeerStore) Load() (*PeerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *PeerStore) loadLocked() (*PeerState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &PeerState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Record notes a connection to address and saves the state.
func (s *PeerStore) Record(address, name, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	if state == nil {
		state = &PeerState{}
	}

	address = strings.ToUpper(address)
	idx := -1
	for i := range state.Peers {
		if state.Peers[i].Address == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		state.Peers = append(state.Peers, KnownPeer{Address: address, FirstSeenAt: at})
		idx = len(state.Peers) - 1
	}

	p := &state.Peers[idx]
	if name != "" {
		p.Name = name
	}
	if sessionID != "" {
		p.LastSessionID = sessionID
	}
	p.LastConnectedAt = at
	p.Connections++

	sort.SliceStable(state.Peers, func(i, j int) bool {
		return state.Peers[i].LastConnectedAt.After(state.Peers[j].LastConnectedAt)
	})
	return s.saveLocked(state)
}

// Last returns the most recently connected peer, or nil.
func (s *PeerStore) Last() (*KnownPeer, error) {
	state, err := s.Load()
	if err != nil || state == nil || len(state.Peers) == 0 {
		return nil, err
	}
	p := state.Peers[0]
	return &p, nil
}

// Clear removes the state file.
func (s *PeerStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
