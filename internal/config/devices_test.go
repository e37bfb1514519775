package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lismorewater/flowmon/internal/config"
	"github.com/lismorewater/flowmon/internal/reading"
)

func writeDevicesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write devices file: %v", err)
	}
	return path
}

func TestLoadDevices(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - id: FIT100
    name: Flume FIT100
    location: Pump station 3
    endpoint: http://10.0.0.50/dashboard
    wait_for: "#div_varvalue_10"
    fields:
      depth_mm:
        selector: "#div_varvalue_10"
      velocity_mps:
        selector: "#div_varvalue_6"
      flow_lps:
        selector: "#div_varvalue_42"
        json_key: flow
`)

	devices, err := config.LoadDevices(path)
	if err != nil {
		t.Fatalf("LoadDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(devices))
	}

	d := devices[0]
	if d.ID != "FIT100" || d.Name != "Flume FIT100" || d.Location != "Pump station 3" {
		t.Errorf("Unexpected device identity: %+v", d)
	}
	if d.WaitFor != "#div_varvalue_10" {
		t.Errorf("WaitFor = %q", d.WaitFor)
	}
	if len(d.Locators) != 3 {
		t.Fatalf("Expected 3 locators, got %d", len(d.Locators))
	}
	if d.Locators[reading.FieldFlow].JSONKey != "flow" {
		t.Errorf("Flow JSONKey = %q, want flow", d.Locators[reading.FieldFlow].JSONKey)
	}
	if d.Locators[reading.FieldDepth].Selector != "#div_varvalue_10" {
		t.Errorf("Depth selector = %q", d.Locators[reading.FieldDepth].Selector)
	}
}

func TestLoadDevices_NameDefaultsToID(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - id: FIT200
    endpoint: http://10.0.0.51/dashboard
`)

	devices, err := config.LoadDevices(path)
	if err != nil {
		t.Fatalf("LoadDevices failed: %v", err)
	}
	if devices[0].Name != "FIT200" {
		t.Errorf("Name = %q, want FIT200", devices[0].Name)
	}
}

func TestLoadDevices_RejectsUnknownField(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - id: FIT100
    endpoint: http://10.0.0.50/dashboard
    fields:
      temperature_c:
        selector: "#temp"
`)

	if _, err := config.LoadDevices(path); err == nil {
		t.Fatal("Expected error for unknown field mapping")
	}
}

func TestLoadDevices_RejectsDuplicateID(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - id: FIT100
    endpoint: http://10.0.0.50/dashboard
  - id: FIT100
    endpoint: http://10.0.0.51/dashboard
`)

	if _, err := config.LoadDevices(path); err == nil {
		t.Fatal("Expected error for duplicate device id")
	}
}

func TestLoadDevices_RejectsMissingEndpoint(t *testing.T) {
	path := writeDevicesFile(t, `
devices:
  - id: FIT100
`)

	if _, err := config.LoadDevices(path); err == nil {
		t.Fatal("Expected error for device without endpoint")
	}
}

func TestLoadDevices_EmptyFile(t *testing.T) {
	path := writeDevicesFile(t, "devices: []\n")

	if _, err := config.LoadDevices(path); err == nil {
		t.Fatal("Expected error for empty device list")
	}
}
