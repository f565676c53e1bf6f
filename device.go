package noip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Travis-Britz/noip/internal/logging"
)

var discard = zap.NewNop()

type settings struct {
	resolver          Resolver
	updater           Updater
	mirror            Provider
	mirrorRecord      string
	httpClient        *http.Client
	logger            *zap.Logger
	logging           string
	now               func() time.Time
	interval          time.Duration
	accessory         *Accessory
	allowInvalidNames bool
	mirrorTimeout     time.Duration
	ticks             func(time.Duration) (<-chan time.Time, func())
}

// Option configures a Device or, passed to NewPlatform, every device of the platform.
type Option func(*settings) error

// UsingResolver replaces the lookup service selected by the device configuration.
func UsingResolver(resolver Resolver) Option {
	return func(s *settings) error {
		if resolver == nil {
			return errors.New("resolver cannot be nil")
		}
		s.resolver = resolver
		return nil
	}
}

// UsingUpdater replaces the No-IP update client.
func UsingUpdater(updater Updater) Option {
	return func(s *settings) error {
		if updater == nil {
			return errors.New("updater cannot be nil")
		}
		s.updater = updater
		return nil
	}
}

// UsingCloudflare mirrors every confirmed address to the Cloudflare DNS record named record.
// It takes precedence over the cloudflare section of the device configuration.
func UsingCloudflare(token, record string) Option {
	return func(s *settings) (err error) {
		if record == "" {
			return errors.New("noip.UsingCloudflare: record cannot be empty")
		}
		if s.mirror, err = newCloudflareProvider(token); err != nil {
			return fmt.Errorf("noip.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		s.mirrorRecord = record
		return nil
	}
}

// MirroringTo sets record with provider each time No-IP confirms a new address.
func MirroringTo(provider Provider, record string) Option {
	return func(s *settings) error {
		if provider == nil || record == "" {
			return errors.New("noip.MirroringTo: provider and record are required")
		}
		s.mirror, s.mirrorRecord = provider, record
		return nil
	}
}

// UsingHTTPClient sets the client used by the resolver, the updater and the mirror,
// when they accept one.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(s *settings) error {
		s.httpClient = httpclient
		return nil
	}
}

// WithLogger sets the root logger.
// Devices narrow it according to their logging setting.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			logger = discard
		}
		s.logger = logger
		return nil
	}
}

// WithLogging sets the logging mode for devices that do not set their own.
func WithLogging(mode string) Option {
	return func(s *settings) error {
		s.logging = mode
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) error {
		if now == nil {
			now = time.Now
		}
		s.now = now
		return nil
	}
}

// WithRefreshInterval overrides the interval taken from the device configuration.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *settings) error {
		s.interval = interval
		return nil
	}
}

// WithAccessory makes the device report through an existing accessory record.
func WithAccessory(acc *Accessory) Option {
	return func(s *settings) error {
		s.accessory = acc
		return nil
	}
}

// AllowInvalidNames keeps configured display names that HomeKit may reject.
func AllowInvalidNames(allow bool) Option {
	return func(s *settings) error {
		s.allowInvalidNames = allow
		return nil
	}
}

func applyOptions(options []Option) (settings, error) {
	s := settings{logger: discard, now: time.Now, mirrorTimeout: 15 * time.Second, ticks: newTicker}
	for i, opt := range options {
		if err := opt(&s); err != nil {
			return s, fmt.Errorf("option %d returned an error: %s", i, err)
		}
	}
	return s, nil
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Device runs the refresh loop for one hostname.
type Device struct {
	config   DeviceConfig
	interval time.Duration
	resolver Resolver
	updater  Updater
	mirror   Provider
	record   string
	timeout  time.Duration // bounds each mirror call
	ticks    func(time.Duration) (<-chan time.Time, func())
	adapter  *accessoryAdapter
	logger   *zap.Logger
	now      func() time.Time

	session  session
	mirrored string // only touched inside a cycle

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDevice constructs the refresh loop for cfg.
// The contact sensor is set open until the first cycle completes.
func NewDevice(cfg DeviceConfig, host Host, options ...Option) (*Device, error) {
	cfg.Hostname = strings.TrimSpace(cfg.Hostname)
	if cfg.Hostname == "" {
		return nil, errors.New("noip.NewDevice: hostname cannot be empty")
	}
	if host == nil {
		return nil, errors.New("noip.NewDevice: host cannot be nil")
	}
	s, err := applyOptions(options)
	if err != nil {
		return nil, fmt.Errorf("noip.NewDevice: %w", err)
	}

	mode := cfg.Logging
	if mode == "" {
		mode = s.logging
	}
	logger := logging.Narrow(s.logger, mode).With(zap.String("hostname", cfg.Hostname))

	if s.interval <= 0 {
		s.interval = PlatformConfig{}.RefreshInterval(cfg)
	}
	if s.interval < MinRefreshRate {
		logger.Debug("refresh interval raised to the minimum", zap.Duration("configured", s.interval), zap.Duration("interval", MinRefreshRate))
		s.interval = MinRefreshRate
	}
	if s.resolver == nil {
		if cfg.Interface != "" {
			s.resolver = InterfaceResolver(cfg.Interface, cfg.Family())
		} else {
			s.resolver = WebResolver(cfg.Provider(), cfg.Family())
		}
	}
	if s.updater == nil {
		s.updater = NoIPUpdater("")
	}
	if s.mirror == nil && cfg.Cloudflare != nil && cfg.Cloudflare.Token != "" && cfg.Cloudflare.Record != "" {
		if s.mirror, err = newCloudflareProvider(cfg.Cloudflare.Token); err != nil {
			return nil, fmt.Errorf("noip.NewDevice: error creating cloudflare DNS provider: %w", err)
		}
		s.mirrorRecord = cfg.Cloudflare.Record
	}

	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	type setLogger interface {
		SetLogger(*zap.Logger)
	}
	for _, dep := range []any{s.resolver, s.updater, s.mirror} {
		if hc, ok := dep.(setHTTPClient); ok && s.httpClient != nil {
			hc.SetHTTPClient(s.httpClient)
		}
		if l, ok := dep.(setLogger); ok {
			l.SetLogger(logger)
		}
	}

	acc := s.accessory
	if acc == nil {
		acc = NewAccessory(cfg, s.allowInvalidNames)
	}
	d := &Device{
		config:   cfg,
		interval: s.interval,
		resolver: s.resolver,
		updater:  s.updater,
		mirror:   s.mirror,
		record:   s.mirrorRecord,
		timeout:  s.mirrorTimeout,
		ticks:    s.ticks,
		adapter:  newAccessoryAdapter(host, acc, logger),
		logger:   logger,
		now:      s.now,
		stop:     make(chan struct{}),
	}
	if err := d.adapter.setState(ContactNotDetected); err != nil {
		logger.Error("unable to set initial sensor state", zap.Error(err))
	}
	return d, nil
}

// Hostname returns the configured hostname.
func (d *Device) Hostname() string { return d.config.Hostname }

// Interval returns the time between scheduled cycles.
func (d *Device) Interval() time.Duration { return d.interval }

// Accessory returns a copy of the accessory record.
func (d *Device) Accessory() Accessory { return d.adapter.accessory() }

// Run performs one cycle immediately and then one per interval,
// until ctx is cancelled or Stop is called.
//
// Cycles run in their own goroutine.
// A tick that arrives while a cycle is still in flight is dropped.
func (d *Device) Run(ctx context.Context) {
	d.logger.Info("starting refresh loop", zap.Duration("interval", d.interval))
	d.tick(ctx)

	ticks, stop := d.ticks(d.interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticks:
			d.tick(ctx)
		}
	}
}

func (d *Device) tick(ctx context.Context) {
	go func() {
		err := d.Refresh(ctx)
		switch {
		case errors.Is(err, ErrInFlight), errors.Is(err, ErrCoolingDown), errors.Is(err, ErrSuspended), errors.Is(err, ErrRemoved):
			d.logger.Debug("skipping refresh", zap.Error(err))
		}
	}()
}

// Refresh runs one cycle: resolve the public address, send it to No-IP and act on the reply.
//
// It returns ErrInFlight, ErrSuspended, ErrCoolingDown or ErrRemoved without making
// any request when the cycle must be skipped.
// Cancelling ctx does not interrupt a cycle that has started;
// each request has its own timeout instead.
func (d *Device) Refresh(ctx context.Context) error {
	if err := d.session.begin(d.now()); err != nil {
		return err
	}
	defer d.session.end()
	ctx = context.WithoutCancel(ctx)

	ip, err := d.resolver.Resolve(ctx)
	if err == nil && ip == "" {
		err = &ResolveError{Provider: d.config.Provider(), Family: d.config.Family(), Err: errors.New("no address returned")}
	}
	if err != nil {
		return d.fail("public IP lookup failed", err)
	}
	d.logger.Debug("resolved public IP", zap.String("ip", ip))

	res, err := d.updater.PushUpdate(ctx, Update{
		Hostname: d.config.Hostname,
		Username: d.config.Username,
		Password: d.config.Password,
		IP:       ip,
		Firmware: d.config.FirmwareVersion(),
	})
	if err != nil {
		return d.fail("No-IP update failed", err)
	}

	dec := Decide(res.Status, res.IP)
	if dec.Confirmed() && dec.IP == "" {
		dec.IP = ip
	}
	return d.apply(ctx, res, dec)
}

func (d *Device) fail(msg string, cause error) error {
	err := d.session.commit(func() {
		d.session.lastErr = cause
		d.logger.Error(msg, zap.Error(cause))
		if err := d.adapter.setState(ContactNotDetected); err != nil {
			d.logger.Error("unable to update contact sensor", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	return cause
}

func (d *Device) apply(ctx context.Context, res UpdateResult, dec Decision) error {
	var result error
	if !dec.Confirmed() && dec.Status != StatusUnrecognized {
		result = &RejectionError{Status: dec.Status, Body: res.Body}
	}

	err := d.session.commit(func() {
		d.session.lastStatus = dec.Status
		d.session.lastErr = result
		d.session.coolDown(dec.CoolDown, d.now())

		fields := []zap.Field{zap.String("status", string(dec.Status)), zap.Int("http_status", res.StatusCode)}
		if dec.IP != "" {
			fields = append(fields, zap.String("ip", dec.IP))
		}
		if dec.Status == StatusUnrecognized {
			fields = append(fields, zap.String("body", res.Body))
		}
		d.logger.Log(dec.Level, dec.Message, fields...)

		if dec.SetSensor {
			if err := d.adapter.setState(dec.Sensor); err != nil {
				d.logger.Error("unable to update contact sensor", zap.Error(err))
			}
		}
		if dec.Confirmed() {
			d.session.lastIP = dec.IP
			if err := d.adapter.setSerial(ctx, dec.IP); err != nil {
				d.logger.Warn("unable to save accessory context", zap.Error(err))
			}
		}
	})
	if err != nil {
		return err
	}

	if dec.Confirmed() {
		d.mirrorAddress(ctx, dec.IP)
	}
	return result
}

func (d *Device) mirrorAddress(ctx context.Context, ip string) {
	if d.mirror == nil || ip == d.mirrored {
		return
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		d.logger.Warn("not mirroring unparsable address", zap.String("ip", ip), zap.Error(err))
		return
	}
	// the cycle holds the in-flight guard until the mirror returns
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.mirror.SetDNSRecords(ctx, d.record, []netip.Addr{addr}); err != nil {
		d.logger.Warn("error mirroring address", zap.String("record", d.record), zap.Error(err))
		return
	}
	d.mirrored = ip
	d.logger.Info("mirrored address", zap.String("record", d.record), zap.String("ip", ip))
}

// Resume clears a suspension or server error pause.
// The next scheduled cycle, or a call to Refresh, contacts No-IP again.
func (d *Device) Resume() {
	d.session.resume()
	d.logger.Info("updates resumed")
}

// Stop ends the refresh loop and waits for an in-flight cycle to finish.
// The result of that cycle is discarded.
func (d *Device) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.session.remove()
}

// DeviceStatus is a snapshot of a device's refresh state.
type DeviceStatus struct {
	Hostname        string       `json:"hostname"`
	DisplayName     string       `json:"displayName"`
	Provider        ProviderName `json:"ipProvider"`
	Family          Family       `json:"addressFamily"`
	RefreshInterval string       `json:"refreshInterval"`
	Sensor          string       `json:"sensor"`
	IP              string       `json:"ip,omitempty"`
	LastStatus      Status       `json:"lastStatus,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	LastRun         *time.Time   `json:"lastRun,omitempty"`
	InFlight        bool         `json:"inFlight"`
	Suspended       bool         `json:"suspended"`
	CoolDownUntil   *time.Time   `json:"coolDownUntil,omitempty"`
}

// Status returns a snapshot of the device.
func (d *Device) Status() DeviceStatus {
	st := DeviceStatus{
		Hostname:        d.config.Hostname,
		DisplayName:     d.adapter.accessory().DisplayName,
		Provider:        d.config.Provider(),
		Family:          d.config.Family(),
		RefreshInterval: d.interval.String(),
		Sensor:          "unknown",
	}
	if state, ok := d.adapter.current(); ok {
		st.Sensor = state.String()
	}

	d.session.mu.Lock()
	defer d.session.mu.Unlock()
	st.IP = d.session.lastIP
	st.LastStatus = d.session.lastStatus
	if d.session.lastErr != nil {
		st.LastError = d.session.lastErr.Error()
	}
	if !d.session.lastRun.IsZero() {
		t := d.session.lastRun
		st.LastRun = &t
	}
	st.InFlight = d.session.inFlight
	st.Suspended = d.session.suspended
	if d.now().Before(d.session.coolDownUntil) {
		t := d.session.coolDownUntil
		st.CoolDownUntil = &t
	}
	return st
}
