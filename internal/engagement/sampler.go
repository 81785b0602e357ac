package engagement

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Kind identifies one class of raw interaction signal.
type Kind string

const (
	PointerMove Kind = "pointer_move"
	KeyPress    Kind = "key_press"
	Scroll      Kind = "scroll"
	Click       Kind = "click"
)

// resetWindow bounds counter accumulation; without it a long burst of
// activity would mask a later idle period.
const resetWindow = 5 * time.Minute

// Sampler accumulates raw interaction counters and the page visibility
// flag. It only answers questions; idle decisions belong to the reporter.
type Sampler struct {
	mu         sync.Mutex
	clock      quartz.Clock
	counts     map[Kind]int
	visible    bool
	lastSignal time.Time
	lastReset  time.Time
}

func NewSampler(clock quartz.Clock) *Sampler {
	now := clock.Now()
	return &Sampler{
		clock:      clock,
		counts:     make(map[Kind]int),
		visible:    true,
		lastSignal: now,
		lastReset:  now,
	}
}

func (s *Sampler) Record(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.resetIfStaleLocked(now)
	s.counts[kind]++
	s.lastSignal = now
}

// Score is the sum of all interaction counters since the last reset.
func (s *Sampler) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfStaleLocked(s.clock.Now())
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

func (s *Sampler) LastSignal() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSignal
}

func (s *Sampler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Sampler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[Kind]int)
	s.lastReset = s.clock.Now()
}

func (s *Sampler) resetIfStaleLocked(now time.Time) {
	if now.Sub(s.lastReset) >= resetWindow {
		s.counts = make(map[Kind]int)
		s.lastReset = now
	}
}
