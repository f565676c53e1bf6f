package noip

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SensorState is the value of a contact sensor.
// The values match the HomeKit ContactSensorState characteristic.
type SensorState int

const (
	// ContactDetected (closed) means No-IP confirmed the address.
	ContactDetected SensorState = 0
	// ContactNotDetected (open) means the last cycle failed or the state is unknown.
	ContactNotDetected SensorState = 1
)

func (s SensorState) String() string {
	if s == ContactDetected {
		return "closed"
	}
	return "open"
}

const (
	Manufacturer = "No-IP"
	Model        = "Dynamic DNS Update Client"
)

// Accessory is the host's record of one device.
// Context is persisted by the host across restarts.
type Accessory struct {
	UUID        string           `json:"uuid"`
	DisplayName string           `json:"displayName"`
	Context     AccessoryContext `json:"context"`
}

// AccessoryContext is the per-accessory blob kept in the host's cache.
type AccessoryContext struct {
	Hostname string `json:"hostname"`
	Model    string `json:"model"`
	Serial   string `json:"serialNumber"` // last confirmed IP address
	Firmware string `json:"firmwareRevision"`
}

// AccessoryUUID is the stable identifier of the accessory for hostname.
func AccessoryUUID(hostname string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(strings.ToLower(strings.TrimSpace(hostname)))).String()
}

// NewAccessory builds the accessory record for a device that has none cached.
func NewAccessory(cfg DeviceConfig, allowInvalidNames bool) *Accessory {
	acc := &Accessory{UUID: AccessoryUUID(cfg.Hostname)}
	syncAccessory(acc, cfg, allowInvalidNames)
	return acc
}

// syncAccessory refreshes the fields derived from configuration.
func syncAccessory(acc *Accessory, cfg DeviceConfig, allowInvalidNames bool) {
	acc.DisplayName = cfg.DisplayName(allowInvalidNames)
	acc.Context.Hostname = cfg.Hostname
	acc.Context.Model = Model
	acc.Context.Firmware = cfg.FirmwareVersion()
}

// accessoryAdapter reflects refresh results on the host,
// skipping writes that would not change anything.
type accessoryAdapter struct {
	host   Host
	logger *zap.Logger

	mu      sync.Mutex
	acc     *Accessory
	state   SensorState
	written bool
}

func newAccessoryAdapter(host Host, acc *Accessory, logger *zap.Logger) *accessoryAdapter {
	return &accessoryAdapter{host: host, acc: acc, logger: logger}
}

func (a *accessoryAdapter) setState(state SensorState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.written && a.state == state {
		return nil
	}
	if err := a.host.SetContactState(a.acc, state); err != nil {
		return fmt.Errorf("error setting contact sensor state: %w", err)
	}
	a.logger.Debug("contact sensor updated", zap.Stringer("state", state))
	a.state, a.written = state, true
	return nil
}

// setSerial records the last confirmed address in the accessory context.
func (a *accessoryAdapter) setSerial(ctx context.Context, ip string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ip == "" || a.acc.Context.Serial == ip {
		return nil
	}
	previous := a.acc.Context.Serial
	a.acc.Context.Serial = ip
	if err := a.host.UpdateAccessory(ctx, a.acc); err != nil {
		a.acc.Context.Serial = previous
		return fmt.Errorf("error updating accessory context: %w", err)
	}
	return nil
}

func (a *accessoryAdapter) current() (SensorState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.written
}

func (a *accessoryAdapter) accessory() Accessory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.acc
}
