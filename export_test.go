package noip

import "time"

// WithMirrorTimeout shortens the bound on each mirror call.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *settings) error {
		s.mirrorTimeout = d
		return nil
	}
}

// WithTicks drives the refresh loop from ticks instead of a ticker.
func WithTicks(ticks <-chan time.Time) Option {
	return func(s *settings) error {
		s.ticks = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
		return nil
	}
}
