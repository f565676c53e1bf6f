package noip_test

import (
	"context"
	"sync"

	"github.com/Travis-Britz/noip"
)

// fakeHost records every call made by the platform and its devices.
type fakeHost struct {
	mu           sync.Mutex
	cached       []*noip.Accessory
	registered   []string
	updated      []string
	unregistered []string
	states       map[string][]noip.SensorState
}

func newFakeHost(cached ...*noip.Accessory) *fakeHost {
	return &fakeHost{cached: cached, states: map[string][]noip.SensorState{}}
}

func (h *fakeHost) CachedAccessories(context.Context) ([]*noip.Accessory, error) {
	return h.cached, nil
}

func (h *fakeHost) RegisterAccessory(_ context.Context, acc *noip.Accessory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = append(h.registered, acc.Context.Hostname)
	return nil
}

func (h *fakeHost) UpdateAccessory(_ context.Context, acc *noip.Accessory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updated = append(h.updated, acc.Context.Hostname)
	return nil
}

func (h *fakeHost) UnregisterAccessory(_ context.Context, acc *noip.Accessory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregistered = append(h.unregistered, acc.Context.Hostname)
	return nil
}

func (h *fakeHost) SetContactState(acc *noip.Accessory, state noip.SensorState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[acc.UUID] = append(h.states[acc.UUID], state)
	return nil
}

// writes returns the sensor states written for hostname, oldest first.
func (h *fakeHost) writes(hostname string) []noip.SensorState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]noip.SensorState(nil), h.states[noip.AccessoryUUID(hostname)]...)
}

// last returns the most recent state written for hostname.
func (h *fakeHost) last(hostname string) (noip.SensorState, bool) {
	w := h.writes(hostname)
	if len(w) == 0 {
		return 0, false
	}
	return w[len(w)-1], true
}

func count(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}
