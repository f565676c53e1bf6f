package noip_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Travis-Britz/noip"
)

func device(hostname string) noip.DeviceConfig {
	return noip.DeviceConfig{Hostname: hostname, Username: "me@example.com", Password: "hunter2"}
}

func launch(t *testing.T, cfg noip.PlatformConfig, host *fakeHost, options ...noip.Option) *noip.Platform {
	t.Helper()
	p, err := noip.NewPlatform(cfg, host, options...)
	if err != nil {
		t.Fatalf("NewPlatform failed: %s", err)
	}
	if err := p.Launch(context.Background()); err != nil {
		t.Fatalf("Launch failed: %s", err)
	}
	return p
}

func TestLaunchRegistersNewDevices(t *testing.T) {
	host := newFakeHost()
	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{device("b.ddns.net"), device("a.ddns.net")}}, host)

	if len(host.registered) != 2 || len(host.updated) != 0 || len(host.unregistered) != 0 {
		t.Fatalf("Expected 2 registrations only; got registered=%v updated=%v unregistered=%v", host.registered, host.updated, host.unregistered)
	}
	devices := p.Devices()
	if len(devices) != 2 || devices[0].Hostname() != "a.ddns.net" || devices[1].Hostname() != "b.ddns.net" {
		t.Fatalf("Expected devices ordered by hostname; got %d devices", len(devices))
	}
	if _, ok := p.Device("A.DDNS.NET"); !ok {
		t.Fatalf("Expected hostname lookups to ignore case")
	}
	if state, ok := host.last("a.ddns.net"); !ok || state != noip.ContactNotDetected {
		t.Fatalf("Expected new sensors to start open; got %s (written: %t)", state, ok)
	}
}

func TestLaunchRestoresCachedAccessory(t *testing.T) {
	cached := noip.NewAccessory(device("home.ddns.net"), false)
	cached.DisplayName = "old name"
	cached.Context.Serial = "203.0.113.5"
	host := newFakeHost(cached)

	cfg := device("home.ddns.net")
	cfg.Name = "Home Router"
	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{cfg}}, host)

	if len(host.registered) != 0 {
		t.Fatalf("Expected a cached accessory not to be registered again; got %v", host.registered)
	}
	if n := count(host.updated, "home.ddns.net"); n != 1 {
		t.Fatalf("Expected the cached accessory to be updated once; got %d", n)
	}
	d, _ := p.Device("home.ddns.net")
	acc := d.Accessory()
	if acc.UUID != cached.UUID || acc.DisplayName != "Home Router" || acc.Context.Serial != "203.0.113.5" {
		t.Fatalf("unexpected restored accessory %+v", acc)
	}
}

func TestLaunchDeleteFlag(t *testing.T) {
	gone := device("gone.ddns.net")
	gone.Delete = true
	never := device("never.ddns.net")
	never.Delete = true
	host := newFakeHost(noip.NewAccessory(gone, false))

	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{gone, never}}, host)

	if len(host.registered) != 0 {
		t.Fatalf("Expected devices marked delete never to be registered; got %v", host.registered)
	}
	if n := count(host.unregistered, "gone.ddns.net"); n != 1 {
		t.Fatalf("Expected the cached accessory to be unregistered once; got %d", n)
	}
	if len(host.unregistered) != 1 {
		t.Fatalf("Expected exactly 1 unregistration; got %v", host.unregistered)
	}
	if len(p.Devices()) != 0 {
		t.Fatalf("Expected no devices to run")
	}
}

func TestLaunchRemovesStaleAccessories(t *testing.T) {
	host := newFakeHost(
		noip.NewAccessory(device("stale.ddns.net"), false),
		noip.NewAccessory(device("kept.ddns.net"), false),
	)
	launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{device("kept.ddns.net")}}, host)

	if n := count(host.unregistered, "stale.ddns.net"); n != 1 {
		t.Fatalf("Expected the stale accessory to be unregistered once; got %d", n)
	}
	if n := count(host.unregistered, "kept.ddns.net"); n != 0 {
		t.Fatalf("Expected the configured accessory to be kept; got %d unregistrations", n)
	}
}

func TestLaunchLogsConfigurationErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bad := device("home.ddns.net")
	bad.Username = "not-an-email"
	bad.AddressFamily = "ipv5"
	host := newFakeHost()

	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{bad, {Name: "no hostname"}}}, host, noip.WithLogger(zap.New(core)))

	var configErrors int
	for _, e := range logs.FilterLevelExact(zapcore.ErrorLevel).All() {
		if err, ok := e.ContextMap()["error"].(string); ok && strings.Contains(err, "email address") {
			configErrors++
		}
	}
	if configErrors != 1 {
		t.Fatalf("Expected the bad username to be logged once; got %d", configErrors)
	}
	if _, ok := p.Device("home.ddns.net"); !ok {
		t.Fatalf("Expected a device with configuration errors to still be created")
	}
	if len(p.Devices()) != 1 || len(host.registered) != 1 {
		t.Fatalf("Expected the device without a hostname to be skipped")
	}
}

func TestLaunchIgnoresDuplicateHostnames(t *testing.T) {
	host := newFakeHost()
	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{device("home.ddns.net"), device("Home.ddns.net")}}, host)
	if len(p.Devices()) != 1 || len(host.registered) != 1 {
		t.Fatalf("Expected the duplicate hostname to be ignored; got %d devices", len(p.Devices()))
	}
}

func TestLaunchOnce(t *testing.T) {
	p := launch(t, noip.PlatformConfig{}, newFakeHost())
	if err := p.Launch(context.Background()); err == nil {
		t.Fatalf("Expected a second Launch to fail; got err == nil")
	}
}

type brokenCache struct{ *fakeHost }

func (brokenCache) CachedAccessories(context.Context) ([]*noip.Accessory, error) {
	return nil, errors.New("disk on fire")
}

func TestLaunchCacheFailure(t *testing.T) {
	p, err := noip.NewPlatform(noip.PlatformConfig{Devices: []noip.DeviceConfig{device("home.ddns.net")}}, brokenCache{newFakeHost()})
	if err != nil {
		t.Fatalf("NewPlatform failed: %s", err)
	}
	if err := p.Launch(context.Background()); err == nil {
		t.Fatalf("Expected a cache failure to be returned; got err == nil")
	}
}

func TestRefreshIntervalPrecedence(t *testing.T) {
	fast := device("fast.ddns.net")
	fast.RefreshRate = 120
	tooFast := device("toofast.ddns.net")
	tooFast.RefreshRate = 5
	cfg := noip.PlatformConfig{
		RefreshRate: 600,
		Devices:     []noip.DeviceConfig{device("plain.ddns.net"), fast, tooFast},
	}
	p := launch(t, cfg, newFakeHost())

	expected := map[string]time.Duration{
		"plain.ddns.net":   10 * time.Minute,
		"fast.ddns.net":    2 * time.Minute,
		"toofast.ddns.net": noip.MinRefreshRate,
	}
	for hostname, interval := range expected {
		d, ok := p.Device(hostname)
		if !ok {
			t.Fatalf("device %s not found", hostname)
		}
		if d.Interval() != interval {
			t.Fatalf("%s: Expected %s; got %s", hostname, interval, d.Interval())
		}
	}
	if expected, got := noip.DefaultRefreshRate, (noip.PlatformConfig{}).RefreshInterval(device("x.ddns.net")); expected != got {
		t.Fatalf("Expected %s; got %s", expected, got)
	}
}

func TestPlatformRun(t *testing.T) {
	host := newFakeHost()
	f := newFakeNoIP("203.0.113.5", "nochg 203.0.113.5")
	cfg := noip.PlatformConfig{Devices: []noip.DeviceConfig{device("a.ddns.net"), device("b.ddns.net")}}
	p := launch(t, cfg, host, f.options()...)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(5 * time.Second)
	for {
		a, _ := host.last("a.ddns.net")
		b, _ := host.last("b.ddns.net")
		if a == noip.ContactDetected && b == noip.ContactDetected {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected both sensors to close")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-stopped

	for _, d := range p.Devices() {
		if err := d.Refresh(context.Background()); !errors.Is(err, noip.ErrRemoved) {
			t.Fatalf("Expected devices to be stopped after Run returns; got %v", err)
		}
	}
}

func TestLaunchTrimsHostname(t *testing.T) {
	host := newFakeHost()
	p := launch(t, noip.PlatformConfig{Devices: []noip.DeviceConfig{device(" home.ddns.net ")}}, host)
	d, ok := p.Device("home.ddns.net")
	if !ok {
		t.Fatalf("Expected the device to be found by its trimmed hostname")
	}
	if expected, got := "home.ddns.net", d.Hostname(); expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if len(host.registered) != 1 || host.registered[0] != "home.ddns.net" {
		t.Fatalf("Expected the accessory to be registered with the trimmed hostname; got %v", host.registered)
	}
}
