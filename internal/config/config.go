// Package config loads the noipsensor configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Travis-Britz/noip"
)

// EnvPrefix prefixes environment overrides, e.g. NOIP_REFRESHRATE=600.
const EnvPrefix = "noip"

// File is the whole configuration file: the platform plus the HomeKit bridge settings.
type File struct {
	noip.PlatformConfig `mapstructure:",squash" yaml:",inline"`
	Bridge              Bridge `mapstructure:"bridge" yaml:"bridge"`
}

// Bridge configures the HomeKit bridge the accessories are published on.
type Bridge struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Pin         string `mapstructure:"pin" yaml:"pin"`
	Port        string `mapstructure:"port" yaml:"port,omitempty"`
	StoragePath string `mapstructure:"storagePath" yaml:"storagePath"`
}

// CachePath is where the accessory cache lives inside the bridge storage directory.
func (b Bridge) CachePath() string {
	return filepath.Join(b.StoragePath, "accessories.db")
}

// Load reads the configuration at path.
// JSON and YAML are both accepted, chosen by file extension.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &f, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "NoIP")
	v.SetDefault("refreshRate", int(noip.DefaultRefreshRate.Seconds()))
	v.SetDefault("logging", "standard")
	v.SetDefault("allowInvalidCharacters", false)
	v.SetDefault("listen", "")

	v.SetDefault("bridge.name", "NoIP")
	v.SetDefault("bridge.pin", "03145154")
	v.SetDefault("bridge.port", "")
	v.SetDefault("bridge.storagePath", defaultStoragePath())
}

func defaultStoragePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "noipsensor")
	}
	return "noipsensor"
}

// DefaultPath is used when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(defaultStoragePath(), "config.yaml")
}

// Write creates a new YAML configuration file at path with 0600 permissions.
// It refuses to overwrite an existing file.
func Write(path string, f *File) error {
	b, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer file.Close()
	if _, err := file.Write(b); err != nil {
		return fmt.Errorf("error writing \"%s\": %w", path, err)
	}
	return nil
}

// ErrPermissions is wrapped by VerifyPermissions when the file is readable by others.
var ErrPermissions = errors.New("configuration file permissions are too open")

// VerifyPermissions checks that the file holding the No-IP passwords is private.
func VerifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking config file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": %w: expected \"-rw-------\"; found \"%s\"", path, ErrPermissions, fs.FileMode(perms))
	}
	return nil
}
