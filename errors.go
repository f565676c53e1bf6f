package noip

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by every *ConfigError.
var ErrConfiguration = errors.New("configuration error")

// Refresh returns these when a cycle is skipped before any network call is made.
var (
	ErrInFlight    = errors.New("a refresh is already in progress")
	ErrCoolingDown = errors.New("updates are paused after a No-IP server error")
	ErrSuspended   = errors.New("updates are suspended until resumed")
	ErrRemoved     = errors.New("device was removed")
)

// ConfigError reports one problem with a device configuration.
// Devices with configuration errors are still attempted.
type ConfigError struct {
	Hostname string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Hostname == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("device %q: %s: %s", e.Hostname, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ResolveError is returned when the public IP lookup fails.
// The next scheduled cycle retries on its own.
type ResolveError struct {
	Provider ProviderName
	Family   Family
	Err      error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s address with %s: %s", e.Family, e.Provider, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// TransportError is returned when the No-IP update request could not be completed.
// It is never returned for a response that arrived, whatever its content.
type TransportError struct {
	Hostname string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("updating %s: %s", e.Hostname, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is returned for a recognized No-IP reply other than "good" or "nochg".
type RejectionError struct {
	Status Status
	Body   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("No-IP rejected the update with %q", e.Status)
}
