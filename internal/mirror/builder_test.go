// internal/mirror/builder_test.go
package mirror

import (
	"testing"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/config"
)

func TestBuildPlan(t *testing.T) {
	addr := uint16(40)
	plan := BuildPlan(&config.MirrorConfig{
		Protocol:            "ingest",
		Endpoint:            "127.0.0.1:9000",
		UnitID:              3,
		IntervalMs:          250,
		StaleMs:             1500,
		MasterStatusAddress: &addr,
		Devices: []config.MirrorDevice{
			{Port: "ADC1", BaseAddress: 100, MaxParams: 8},
		},
	})

	if plan.Interval != 250*time.Millisecond || plan.UnitID != 3 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.Status == nil || plan.Status.Address != 40 || plan.Status.StaleAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected status plan: %+v", plan.Status)
	}
	if len(plan.Devices) != 1 || plan.Devices[0].MaxParams != 8 {
		t.Fatalf("unexpected devices: %+v", plan.Devices)
	}
}

func TestBuildFactory_UnknownProtocol(t *testing.T) {
	if _, err := BuildFactory(&config.MirrorConfig{Protocol: "opcua"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildFactory_Ingest(t *testing.T) {
	f, err := BuildFactory(&config.MirrorConfig{Protocol: "ingest", Endpoint: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("BuildFactory: %v", err)
	}
	// ingest clients are stateless: creation never dials
	cli, err := f()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	_ = cli.Close()
}
