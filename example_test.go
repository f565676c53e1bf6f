package noip_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/Travis-Britz/noip"
)

func ExampleNewDevice() {
	host := newFakeHost()
	d, err := noip.NewDevice(noip.DeviceConfig{
		Hostname:   "home.ddns.net",
		Username:   "me@example.com",
		Password:   os.Getenv("NOIP_PASSWORD"),
		IPProvider: noip.Ipify,
	}, host,
		noip.UsingHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		noip.WithLogger(zap.NewExample()),
	)
	if err != nil {
		log.Fatalf("error creating device: %s", err)
	}
	// run once:
	if err := d.Refresh(context.Background()); err != nil {
		log.Fatalf("refresh failed: %s", err)
	}
}

func ExampleNewPlatform() {
	cfg := noip.PlatformConfig{
		RefreshRate: 900,
		Devices: []noip.DeviceConfig{
			{Hostname: "home.ddns.net", Username: "me@example.com", Password: os.Getenv("NOIP_PASSWORD")},
			{Hostname: "cabin.ddns.net", Username: "me@example.com", Password: os.Getenv("NOIP_PASSWORD"), AddressFamily: noip.IPv6, Interface: "eth0"},
		},
	}
	p, err := noip.NewPlatform(cfg, newFakeHost())
	if err != nil {
		log.Fatalf("error creating platform: %s", err)
	}
	if err := p.Launch(context.Background()); err != nil {
		log.Fatalf("launch failed: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	p.Run(ctx)
}

func ExampleInterpret() {
	for _, reply := range []string{"good 203.0.113.5", "badauth", "911"} {
		d := noip.Interpret(reply)
		fmt.Println(d.Status, d.Sensor, d.Confirmed())
	}
	// Output:
	// good closed true
	// badauth open false
	// 911 open false
}
