package noip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Travis-Britz/noip/internal/logging"
)

// Platform owns the devices of one configuration and keeps the host's accessories in sync with it.
type Platform struct {
	config  PlatformConfig
	host    Host
	options []Option
	logger  *zap.Logger

	mu       sync.RWMutex
	launched bool
	devices  map[string]*Device
}

// NewPlatform constructs a Platform.
// The options are applied to every device, after the platform defaults.
func NewPlatform(cfg PlatformConfig, host Host, options ...Option) (*Platform, error) {
	if host == nil {
		return nil, errors.New("noip.NewPlatform: host cannot be nil")
	}
	s, err := applyOptions(options)
	if err != nil {
		return nil, fmt.Errorf("noip.NewPlatform: %w", err)
	}
	defaults := []Option{
		WithLogging(cfg.Logging),
		AllowInvalidNames(cfg.AllowInvalidCharacters),
	}
	return &Platform{
		config:  cfg,
		host:    host,
		options: append(defaults, options...),
		logger:  logging.Narrow(s.logger, cfg.Logging),
		devices: map[string]*Device{},
	}, nil
}

func deviceKey(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}

// Launch reconciles the configured devices with the host's cached accessories.
//
// Cached accessories are reused, new devices are registered,
// devices marked delete are never registered (and unregistered if cached),
// and cached accessories that no configured device claims are unregistered.
// Configuration problems are logged; only a failure to read the host cache is returned.
func (p *Platform) Launch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.launched {
		return errors.New("noip.Platform.Launch: already launched")
	}
	p.launched = true

	cached, err := p.host.CachedAccessories(ctx)
	if err != nil {
		return fmt.Errorf("error restoring cached accessories: %w", err)
	}
	byUUID := make(map[string]*Accessory, len(cached))
	for _, acc := range cached {
		byUUID[acc.UUID] = acc
	}
	claimed := map[string]bool{}

	for i, cfg := range p.config.Devices {
		cfg.Hostname = strings.TrimSpace(cfg.Hostname)
		if err := cfg.Validate(); err != nil {
			var joined interface{ Unwrap() []error }
			if errors.As(err, &joined) {
				for _, e := range joined.Unwrap() {
					p.logger.Error("invalid device configuration", zap.Int("device", i), zap.Error(e))
				}
			} else {
				p.logger.Error("invalid device configuration", zap.Int("device", i), zap.Error(err))
			}
		}
		if cfg.Hostname == "" {
			p.logger.Error("device has no hostname and cannot be added", zap.Int("device", i))
			continue
		}

		uuid := AccessoryUUID(cfg.Hostname)
		if claimed[uuid] {
			p.logger.Error("hostname is configured more than once, ignoring duplicate", zap.String("hostname", cfg.Hostname), zap.Int("device", i))
			continue
		}
		claimed[uuid] = true
		acc, existing := byUUID[uuid]

		if cfg.Delete {
			if existing {
				p.unregister(ctx, acc)
			}
			continue
		}

		if existing {
			syncAccessory(acc, cfg, p.config.AllowInvalidCharacters)
			if err := p.host.UpdateAccessory(ctx, acc); err != nil {
				p.logger.Error("error updating cached accessory", zap.String("hostname", cfg.Hostname), zap.Error(err))
			}
			p.logger.Info("restoring existing accessory from cache", zap.String("hostname", cfg.Hostname), zap.String("name", acc.DisplayName))
		} else {
			acc = NewAccessory(cfg, p.config.AllowInvalidCharacters)
			if err := p.host.RegisterAccessory(ctx, acc); err != nil {
				p.logger.Error("error registering accessory", zap.String("hostname", cfg.Hostname), zap.Error(err))
				continue
			}
			p.logger.Info("adding new accessory", zap.String("hostname", cfg.Hostname), zap.String("name", acc.DisplayName))
		}

		opts := append([]Option{WithRefreshInterval(p.config.RefreshInterval(cfg))}, p.options...)
		opts = append(opts, WithAccessory(acc))
		d, err := NewDevice(cfg, p.host, opts...)
		if err != nil {
			p.logger.Error("error creating device", zap.String("hostname", cfg.Hostname), zap.Error(err))
			continue
		}
		p.devices[deviceKey(cfg.Hostname)] = d
	}

	for _, acc := range cached {
		if !claimed[acc.UUID] {
			p.unregister(ctx, acc)
		}
	}
	return nil
}

func (p *Platform) unregister(ctx context.Context, acc *Accessory) {
	if err := p.host.UnregisterAccessory(ctx, acc); err != nil {
		p.logger.Error("error removing accessory", zap.String("uuid", acc.UUID), zap.String("name", acc.DisplayName), zap.Error(err))
		return
	}
	p.logger.Warn("removing accessory", zap.String("uuid", acc.UUID), zap.String("name", acc.DisplayName), zap.String("hostname", acc.Context.Hostname))
}

// Devices returns the launched devices ordered by hostname.
func (p *Platform) Devices() []*Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	devices := make([]*Device, 0, len(p.devices))
	for _, d := range p.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Hostname() < devices[j].Hostname() })
	return devices
}

// Device looks up a launched device by hostname.
func (p *Platform) Device(hostname string) (*Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.devices[deviceKey(hostname)]
	return d, ok
}

// Run starts the refresh loop of every device and blocks until ctx is cancelled.
// It returns after every in-flight cycle has finished.
func (p *Platform) Run(ctx context.Context) {
	devices := p.Devices()
	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}
	wg.Wait()
	for _, d := range devices {
		d.Stop()
	}
	p.logger.Info("all refresh loops stopped", zap.Int("devices", len(devices)))
}
