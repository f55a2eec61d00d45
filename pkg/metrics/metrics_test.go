package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/oc-marketplace-export/pkg/bulk"
	_ "github.com/Sternrassler/oc-marketplace-export/pkg/client"
	_ "github.com/Sternrassler/oc-marketplace-export/pkg/export"
	_ "github.com/Sternrassler/oc-marketplace-export/pkg/ratelimit"
	_ "github.com/Sternrassler/oc-marketplace-export/pkg/session"
	_ "github.com/Sternrassler/oc-marketplace-export/pkg/snapshot"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestNamesAreRegistered(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range Names {
		if !strings.HasPrefix(name, "ocexport_") {
			t.Errorf("%s lacks the ocexport_ prefix", name)
		}
		if seen[name] {
			t.Errorf("%s listed twice", name)
		}
		seen[name] = true

		// Registering a probe under a taken name fails.
		probe := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "probe"})
		if err := Registry.Register(probe); err == nil {
			Registry.Unregister(probe)
			t.Errorf("%s is documented but not registered", name)
		}
	}
}
