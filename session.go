package noip

import (
	"sync"
	"time"
)

// session is the mutable refresh state of one device.
// Every field is guarded by mu.
type session struct {
	mu            sync.Mutex
	cycles        sync.WaitGroup
	inFlight      bool
	removed       bool
	suspended     bool
	coolDownUntil time.Time
	lastRun       time.Time
	lastStatus    Status
	lastIP        string
	lastErr       error
}

// begin claims the session for one cycle.
// It fails without side effects if the cycle must be skipped.
func (s *session) begin(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.removed:
		return ErrRemoved
	case s.inFlight:
		return ErrInFlight
	case s.suspended:
		return ErrSuspended
	case now.Before(s.coolDownUntil):
		return ErrCoolingDown
	}
	s.inFlight = true
	s.lastRun = now
	s.cycles.Add(1)
	return nil
}

func (s *session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
	s.cycles.Done()
}

// commit runs apply under the session lock unless the device was removed,
// so nothing is written to a removed accessory.
func (s *session) commit(apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrRemoved
	}
	apply()
	return nil
}

// coolDown must be called with mu held.
func (s *session) coolDown(kind CoolDown, now time.Time) {
	switch kind {
	case Suspend:
		s.suspended = true
	case Backoff:
		s.coolDownUntil = now.Add(ServerErrorBackoff)
	}
}

func (s *session) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	s.coolDownUntil = time.Time{}
}

// remove marks the session removed and waits for an in-flight cycle to finish.
func (s *session) remove() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
	s.cycles.Wait()
}
