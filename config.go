package noip

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// Version is reported as the firmware revision of every accessory
// and in the User-Agent sent to No-IP, unless a device overrides it.
var Version = "1.0.0"

// DefaultRefreshRate is used when neither the device nor the platform sets a refresh rate.
const DefaultRefreshRate = 1800 * time.Second

// MinRefreshRate is the shortest interval a refresh loop will use.
const MinRefreshRate = 1 * time.Minute

// Family selects between IPv4 and IPv6 lookups.
type Family string

const (
	IPv4 Family = "ipv4"
	IPv6 Family = "ipv6"
)

// ParseFamily accepts "ipv4", "v4", "4" and the IPv6 equivalents.
// Anything else is reported as false and treated as IPv4.
func ParseFamily(s string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ipv4", "v4", "4":
		return IPv4, true
	case "ipv6", "v6", "6":
		return IPv6, true
	}
	return IPv4, false
}

func (f Family) String() string { return string(f) }

// DeviceConfig configures one No-IP hostname.
type DeviceConfig struct {
	Hostname      string            `json:"hostname" yaml:"hostname" mapstructure:"hostname"`
	Username      string            `json:"username" yaml:"username" mapstructure:"username"`
	Password      string            `json:"password" yaml:"password" mapstructure:"password"`
	AddressFamily Family            `json:"addressFamily,omitempty" yaml:"addressFamily,omitempty" mapstructure:"addressFamily"`
	IPProvider    ProviderName      `json:"ipProvider,omitempty" yaml:"ipProvider,omitempty" mapstructure:"ipProvider"`
	Interface     string            `json:"interface,omitempty" yaml:"interface,omitempty" mapstructure:"interface"`
	Firmware      string            `json:"firmware,omitempty" yaml:"firmware,omitempty" mapstructure:"firmware"`
	Name          string            `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	RefreshRate   int               `json:"refreshRate,omitempty" yaml:"refreshRate,omitempty" mapstructure:"refreshRate"`
	Logging       string            `json:"logging,omitempty" yaml:"logging,omitempty" mapstructure:"logging"`
	Cloudflare    *CloudflareConfig `json:"cloudflare,omitempty" yaml:"cloudflare,omitempty" mapstructure:"cloudflare"`
	Delete        bool              `json:"delete,omitempty" yaml:"delete,omitempty" mapstructure:"delete"`
}

// CloudflareConfig mirrors confirmed addresses to a Cloudflare DNS record.
type CloudflareConfig struct {
	Token  string `json:"token" yaml:"token" mapstructure:"token"`
	Record string `json:"record" yaml:"record" mapstructure:"record"`
}

// PlatformConfig holds the platform-wide settings and the device list.
type PlatformConfig struct {
	Name                   string         `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Devices                []DeviceConfig `json:"devices" yaml:"devices" mapstructure:"devices"`
	RefreshRate            int            `json:"refreshRate,omitempty" yaml:"refreshRate,omitempty" mapstructure:"refreshRate"`
	Logging                string         `json:"logging,omitempty" yaml:"logging,omitempty" mapstructure:"logging"`
	AllowInvalidCharacters bool           `json:"allowInvalidCharacters,omitempty" yaml:"allowInvalidCharacters,omitempty" mapstructure:"allowInvalidCharacters"`
	Listen                 string         `json:"listen,omitempty" yaml:"listen,omitempty" mapstructure:"listen"`
}

// RefreshInterval picks the device refresh rate, then the platform's, then DefaultRefreshRate.
func (p PlatformConfig) RefreshInterval(d DeviceConfig) time.Duration {
	switch {
	case d.RefreshRate > 0:
		return time.Duration(d.RefreshRate) * time.Second
	case p.RefreshRate > 0:
		return time.Duration(p.RefreshRate) * time.Second
	}
	return DefaultRefreshRate
}

// Valid reports whether the fields needed to talk to No-IP are present.
func (d DeviceConfig) Valid() bool {
	return d.Hostname != "" && d.Username != "" && d.Password != ""
}

// Validate returns every problem found in d joined into one error.
// Each joined error is a *ConfigError.
func (d DeviceConfig) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &ConfigError{Hostname: d.Hostname, Field: field, Reason: reason})
	}

	if d.Hostname == "" {
		bad("hostname", "missing")
	} else if _, err := idna.Lookup.ToASCII(d.Hostname); err != nil || !strings.Contains(d.Hostname, ".") {
		bad("hostname", "not a valid domain name")
	}
	if d.Username == "" {
		bad("username", "missing")
	} else if _, err := mail.ParseAddress(d.Username); err != nil {
		bad("username", "expected the email address of the No-IP account")
	}
	if d.Password == "" {
		bad("password", "missing")
	}
	if _, ok := ParseFamily(string(d.AddressFamily)); !ok {
		bad("addressFamily", "unknown value "+string(d.AddressFamily)+", using ipv4")
	}
	if d.IPProvider != "" && !KnownProvider(d.IPProvider) {
		bad("ipProvider", "unknown provider "+string(d.IPProvider)+", using ipinfo")
	}
	if d.Cloudflare != nil && (d.Cloudflare.Token == "" || d.Cloudflare.Record == "") {
		bad("cloudflare", "token and record are both required")
	}
	return errors.Join(errs...)
}

// Family returns the configured address family, defaulting to IPv4.
func (d DeviceConfig) Family() Family {
	f, _ := ParseFamily(string(d.AddressFamily))
	return f
}

// Provider returns the configured lookup provider, defaulting to ipinfo.
func (d DeviceConfig) Provider() ProviderName {
	if KnownProvider(d.IPProvider) {
		return d.IPProvider
	}
	return IPInfo
}

// FirmwareVersion returns the firmware override or Version.
func (d DeviceConfig) FirmwareVersion() string {
	if d.Firmware != "" {
		return d.Firmware
	}
	return Version
}

// DisplayName is the accessory name shown to the user.
// A configured name is used if it only contains characters HomeKit accepts;
// otherwise it is cleaned up unless allowInvalid is set.
// Without a usable name, the first label of the hostname is used.
func (d DeviceConfig) DisplayName(allowInvalid bool) string {
	if name := strings.TrimSpace(d.Name); name != "" {
		if allowInvalid || ValidName(name) {
			return name
		}
		if cleaned := CleanName(name); cleaned != "" {
			return cleaned
		}
	}
	label, _, _ := strings.Cut(d.Hostname, ".")
	return label
}

var (
	validName   = regexp.MustCompile(`^[\p{L}\p{N}]([\p{L}\p{N} ']*[\p{L}\p{N}])?$`)
	invalidRune = regexp.MustCompile(`[^\p{L}\p{N} ']+`)
	spaces      = regexp.MustCompile(` {2,}`)
)

// ValidName reports whether name starts and ends with a letter or number
// and contains only letters, numbers, spaces and apostrophes.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// CleanName strips the characters ValidName rejects.
func CleanName(name string) string {
	name = invalidRune.ReplaceAllString(name, " ")
	name = spaces.ReplaceAllString(name, " ")
	return strings.Trim(name, " '")
}
