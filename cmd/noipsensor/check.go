package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Travis-Britz/noip"
	"github.com/Travis-Britz/noip/internal/config"
)

var resolve bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration without updating No-IP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return check(cmd.Context())
	},
}

func init() {
	checkCmd.Flags().BoolVar(&resolve, "resolve", false, "Also look up the public IP address of each device")
}

func check(ctx context.Context) error {
	var problems []error
	if err := config.VerifyPermissions(configPath); err != nil {
		problems = append(problems, err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	for i, dev := range cfg.Devices {
		fmt.Printf("device %d: %s\n", i, dev.Hostname)
		if dev.Delete {
			fmt.Println("  marked for deletion")
			continue
		}
		fmt.Printf("  name:     %s\n", dev.DisplayName(cfg.AllowInvalidCharacters))
		fmt.Printf("  interval: %s\n", cfg.RefreshInterval(dev))
		if dev.Interface != "" {
			fmt.Printf("  lookup:   interface %s (%s)\n", dev.Interface, dev.Family())
		} else {
			fmt.Printf("  lookup:   %s\n", noip.Endpoint(dev.Provider(), dev.Family()))
		}
		if err := dev.Validate(); err != nil {
			fmt.Printf("  problems:\n    %s\n", err)
			problems = append(problems, err)
		}
		if resolve {
			var r noip.Resolver = noip.WebResolver(dev.Provider(), dev.Family())
			if dev.Interface != "" {
				r = noip.InterfaceResolver(dev.Interface, dev.Family())
			}
			ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
			ip, err := r.Resolve(ctx)
			cancel()
			if err != nil {
				fmt.Printf("  resolve:  %s\n", err)
				problems = append(problems, err)
			} else {
				fmt.Printf("  resolve:  %s\n", ip)
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d problem(s) found: %w", len(problems), errors.Join(problems...))
	}
	fmt.Println("configuration is valid")
	return nil
}
