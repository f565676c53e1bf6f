package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Travis-Britz/noip"
	"github.com/Travis-Britz/noip/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a configuration file for one hostname",
	Long: `Prompts for a No-IP hostname and account, then writes a new configuration file
readable only by the current user. An existing file is never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup()
	},
}

func runSetup() error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("\"%s\" already exists", configPath)
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return errors.New("setup must be run from a terminal")
	}

	in := bufio.NewReader(os.Stdin)
	prompt := func(label, def string) (string, error) {
		if def != "" {
			fmt.Printf("%s [%s]: ", label, def)
		} else {
			fmt.Printf("%s: ", label)
		}
		line, err := in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("error reading from stdin: %w", err)
		}
		if line = strings.TrimSpace(line); line == "" {
			return def, nil
		}
		return line, nil
	}

	var dev noip.DeviceConfig
	var err error
	if dev.Hostname, err = prompt("No-IP hostname", ""); err != nil {
		return err
	}
	if dev.Username, err = prompt("No-IP account email", ""); err != nil {
		return err
	}
	provider, err := prompt("IP lookup provider (ipify, getmyip, ipapi, myip, ipinfo)", string(noip.Ipify))
	if err != nil {
		return err
	}
	dev.IPProvider = noip.ProviderName(provider)
	family, err := prompt("Address family (ipv4, ipv6)", string(noip.IPv4))
	if err != nil {
		return err
	}
	dev.AddressFamily = noip.Family(family)

	fmt.Printf("No-IP password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("error reading from stdin: %w", err)
	}
	dev.Password = string(password)

	if err := dev.Validate(); err != nil {
		return fmt.Errorf("configuration is not valid:\n%w", err)
	}

	f := &config.File{
		PlatformConfig: noip.PlatformConfig{
			Name:        "NoIP",
			RefreshRate: int(noip.DefaultRefreshRate / time.Second),
			Devices:     []noip.DeviceConfig{dev},
		},
		Bridge: config.Bridge{
			Name:        "NoIP",
			Pin:         "03145154",
			StoragePath: filepath.Dir(configPath),
		},
	}
	if err := config.Write(configPath, f); err != nil {
		return err
	}
	fmt.Printf("configuration written to \"%s\"\n", configPath)
	fmt.Printf("HomeKit setup code: %s\n", f.Bridge.Pin)
	return nil
}
