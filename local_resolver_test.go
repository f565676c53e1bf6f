package noip_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Travis-Britz/noip"
)

func TestInterfaceResolverErrors(t *testing.T) {
	for _, iface := range []string{"lo", "does-not-exist0"} {
		_, err := noip.InterfaceResolver(iface, noip.IPv4).Resolve(context.Background())
		var rerr *noip.ResolveError
		if !errors.As(err, &rerr) {
			t.Fatalf("%s: Expected a *ResolveError; got %v", iface, err)
		}
	}
}
