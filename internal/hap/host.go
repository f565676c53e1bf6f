// Package hap publishes noip accessories as a HomeKit bridge.
package hap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Travis-Britz/noip"
)

// Cache persists accessory records between runs.
type Cache interface {
	List(ctx context.Context) ([]*noip.Accessory, error)
	Put(ctx context.Context, acc *noip.Accessory) error
	Delete(ctx context.Context, uuid string) error
}

// Config configures the HomeKit bridge.
type Config struct {
	Name        string
	Pin         string
	Port        string
	StoragePath string
}

type sensor struct {
	acc     *accessory.Accessory
	contact *service.ContactSensor
}

// Host implements noip.Host on a HomeKit bridge.
//
// Accessories are collected while the platform launches and published by Serve.
type Host struct {
	cache  Cache
	logger *zap.Logger

	mu      sync.Mutex
	sensors map[string]*sensor
	serving bool
}

var _ noip.Host = (*Host)(nil)

// New constructs a Host backed by cache.
func New(cache Cache, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{cache: cache, logger: logger, sensors: map[string]*sensor{}}
}

// CachedAccessories implements noip.Host.
func (h *Host) CachedAccessories(ctx context.Context) ([]*noip.Accessory, error) {
	accs, err := h.cache.List(ctx)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, acc := range accs {
		h.ensure(acc)
	}
	return accs, nil
}

// RegisterAccessory implements noip.Host.
func (h *Host) RegisterAccessory(ctx context.Context, acc *noip.Accessory) error {
	if err := h.cache.Put(ctx, acc); err != nil {
		return fmt.Errorf("error caching accessory: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.serving {
		h.logger.Warn("accessory registered after the bridge was published; it appears after a restart", zap.String("name", acc.DisplayName))
	}
	h.ensure(acc)
	return nil
}

// UpdateAccessory implements noip.Host.
func (h *Host) UpdateAccessory(ctx context.Context, acc *noip.Accessory) error {
	if err := h.cache.Put(ctx, acc); err != nil {
		return fmt.Errorf("error caching accessory: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.ensure(acc)
	s.acc.Info.Name.SetValue(acc.DisplayName)
	s.acc.Info.SerialNumber.SetValue(serial(acc))
	s.acc.Info.FirmwareRevision.SetValue(acc.Context.Firmware)
	return nil
}

// UnregisterAccessory implements noip.Host.
func (h *Host) UnregisterAccessory(ctx context.Context, acc *noip.Accessory) error {
	if err := h.cache.Delete(ctx, acc.UUID); err != nil {
		return fmt.Errorf("error removing cached accessory: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sensors, acc.UUID)
	return nil
}

// SetContactState implements noip.Host.
func (h *Host) SetContactState(acc *noip.Accessory, state noip.SensorState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sensors[acc.UUID]
	if !ok {
		return fmt.Errorf("accessory %s is not registered", acc.UUID)
	}
	value := characteristic.ContactSensorStateContactNotDetected
	if state == noip.ContactDetected {
		value = characteristic.ContactSensorStateContactDetected
	}
	s.contact.ContactSensorState.SetValue(value)
	return nil
}

// ensure returns the HomeKit accessory for acc, creating it with its contact sensor service.
// h.mu must be held.
func (h *Host) ensure(acc *noip.Accessory) *sensor {
	if s, ok := h.sensors[acc.UUID]; ok {
		return s
	}
	a := accessory.New(accessory.Info{
		Name:             acc.DisplayName,
		SerialNumber:     serial(acc),
		Manufacturer:     noip.Manufacturer,
		Model:            acc.Context.Model,
		FirmwareRevision: acc.Context.Firmware,
		ID:               accessoryID(acc.UUID),
	}, accessory.TypeSensor)
	contact := service.NewContactSensor()
	contact.ContactSensorState.SetValue(characteristic.ContactSensorStateContactNotDetected)
	a.AddService(contact.Service)

	s := &sensor{acc: a, contact: contact}
	h.sensors[acc.UUID] = s
	return s
}

// Serve publishes the bridge with every registered accessory until ctx is cancelled.
func (h *Host) Serve(ctx context.Context, cfg Config) error {
	h.mu.Lock()
	if h.serving {
		h.mu.Unlock()
		return errors.New("hap: already serving")
	}
	h.serving = true
	accs := make([]*accessory.Accessory, 0, len(h.sensors))
	for _, s := range h.sensors {
		accs = append(accs, s.acc)
	}
	h.mu.Unlock()

	name := cfg.Name
	if name == "" {
		name = "NoIP"
	}
	bridge := accessory.NewBridge(accessory.Info{Name: name, Manufacturer: noip.Manufacturer, Model: "Bridge", FirmwareRevision: noip.Version})
	t, err := hc.NewIPTransport(hc.Config{
		Pin:         cfg.Pin,
		Port:        cfg.Port,
		StoragePath: cfg.StoragePath,
	}, bridge.Accessory, accs...)
	if err != nil {
		return fmt.Errorf("error creating HomeKit transport: %w", err)
	}

	h.logger.Info("publishing HomeKit bridge", zap.String("name", name), zap.Int("accessories", len(accs)))
	go t.Start()
	<-ctx.Done()
	<-t.Stop()
	return nil
}

func serial(acc *noip.Accessory) string {
	if acc.Context.Serial != "" {
		return acc.Context.Serial
	}
	return acc.Context.Hostname
}

// accessoryID derives a stable HomeKit accessory id from the UUID.
// Ids 0 and 1 are reserved for the bridge.
func accessoryID(u string) uint64 {
	id, err := uuid.Parse(u)
	if err != nil {
		return 0
	}
	v := uint64(binary.BigEndian.Uint32(id[:4]))
	if v < 2 {
		v += 2
	}
	return v
}
