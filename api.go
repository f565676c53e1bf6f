package noip

import (
	"context"
	"net/netip"
)

// Resolver looks up the address that should be published for a hostname.
// An empty address with a nil error is treated as a failed lookup.
type Resolver interface {
	Resolve(context.Context) (string, error)
}

// Updater sends an address to the dynamic DNS service.
type Updater interface {
	PushUpdate(ctx context.Context, u Update) (UpdateResult, error)
}

// Provider sets DNS records with a secondary DNS provider.
type Provider interface {
	SetDNSRecords(ctx context.Context, domain string, records []netip.Addr) error
}

// Host is the accessory runtime a Platform runs inside of.
//
// The host owns the accessory cache.
// Accessories returned by CachedAccessories were registered by a previous run
// and remain registered until UnregisterAccessory is called for them.
type Host interface {
	CachedAccessories(ctx context.Context) ([]*Accessory, error)
	RegisterAccessory(ctx context.Context, acc *Accessory) error
	UpdateAccessory(ctx context.Context, acc *Accessory) error
	UnregisterAccessory(ctx context.Context, acc *Accessory) error

	// SetContactState creates the contact sensor service for acc if needed
	// and sets its state characteristic.
	SetContactState(acc *Accessory, state SensorState) error
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(context.Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context) (string, error) { return f(ctx) }

// UpdaterFunc adapts a function to the Updater interface.
type UpdaterFunc func(context.Context, Update) (UpdateResult, error)

func (f UpdaterFunc) PushUpdate(ctx context.Context, u Update) (UpdateResult, error) {
	return f(ctx, u)
}
