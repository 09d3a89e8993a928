package interpreter

import (
	"encoding/json"
	"sort"
	"sync"
)

// Reading is one value delivered for a configured sensor.
type Reading struct {
	// Unix milliseconds
	Timestamp int64   `json:"timestamp"`
	Name      string  `json:"name"`
	Obis      string  `json:"obis"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
}

func (r *Reading) ToJsonBytes() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return b
}

// ReadingFromJsonBytes returns nil when b is not a reading.
func ReadingFromJsonBytes(b []byte) *Reading {
	var r Reading
	if err := json.Unmarshal(b, &r); err != nil || r.Name == "" {
		return nil
	}
	return &r
}

// Publisher receives every reading produced by a Sensor.
type Publisher interface {
	Publish(reading *Reading)
}

type PublisherFunc func(reading *Reading)

func (f PublisherFunc) Publish(reading *Reading) { f(reading) }

// Store keeps the latest reading per sensor name. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	latest map[string]Reading
}

func NewStore() *Store {
	return &Store{latest: make(map[string]Reading)}
}

func (s *Store) Publish(reading *Reading) {
	s.mu.Lock()
	s.latest[reading.Name] = *reading
	s.mu.Unlock()
}

func (s *Store) Get(name string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[name]
	return r, ok
}

// Latest returns a snapshot of all readings sorted by name.
func (s *Store) Latest() []Reading {
	s.mu.RLock()
	readings := make([]Reading, 0, len(s.latest))
	for _, r := range s.latest {
		readings = append(readings, r)
	}
	s.mu.RUnlock()

	sort.Slice(readings, func(i, j int) bool { return readings[i].Name < readings[j].Name })
	return readings
}
