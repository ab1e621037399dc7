package monitor

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/flood_monitor/internal/alert"
	"github.com/LeonardoBeccarini/flood_monitor/internal/model/messages"
)

// Snapshot is the latest reading together with its classification.
type Snapshot struct {
	Sequence       uint64                  `json:"sequence"`
	Reading        *messages.SensorReading `json:"reading"`
	Classification alert.Classification    `json:"classification"`
	Fields         []alert.FieldStatus     `json:"fields"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func (s Snapshot) clone() Snapshot {
	if s.Reading != nil {
		r := *s.Reading
		s.Reading = &r
	}
	if s.Fields != nil {
		s.Fields = append(make([]alert.FieldStatus, 0, len(s.Fields)), s.Fields...)
	}
	return s
}

// State holds exactly one snapshot; every Update replaces it.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewState starts from the "no data" classification.
func NewState(c *alert.Classifier) *State {
	return &State{
		snap: Snapshot{Classification: c.Classify(nil), Fields: []alert.FieldStatus{}},
		now:  time.Now,
	}
}

// Update stores r and its classification and returns the stored snapshot.
func (s *State) Update(r *messages.SensorReading, c alert.Classification, fields []alert.FieldStatus) Snapshot {
	if fields == nil {
		fields = []alert.FieldStatus{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Sequence:       s.snap.Sequence + 1,
		Reading:        r,
		Classification: c,
		Fields:         fields,
		UpdatedAt:      s.now().UTC(),
	}
	s.snap = s.snap.clone()
	return s.snap.clone()
}

// Latest returns a copy of the current snapshot.
func (s *State) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}
