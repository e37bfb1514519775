package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/lismorewater/flowmon/internal/extract"
	"github.com/lismorewater/flowmon/internal/reading"
	"github.com/lismorewater/flowmon/internal/scheduler"
)

// DeviceDef is one device entry in the devices file.
type DeviceDef struct {
	ID       string                `mapstructure:"id"`
	Name     string                `mapstructure:"name"`
	Location string                `mapstructure:"location"`
	Endpoint string                `mapstructure:"endpoint"`
	WaitFor  string                `mapstructure:"wait_for"`
	Fields   map[string]LocatorDef `mapstructure:"fields"`
}

// LocatorDef tells the extractor where one field lives on the device page.
type LocatorDef struct {
	Selector string `mapstructure:"selector"`
	JSONKey  string `mapstructure:"json_key"`
}

// LoadDevices reads the devices file and converts it to the scheduler's
// device list. The file is loaded once at startup; locator changes need a
// restart.
func LoadDevices(path string) ([]scheduler.Device, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read devices file %s: %w", path, err)
	}

	var defs []DeviceDef
	if err := v.UnmarshalKey("devices", &defs); err != nil {
		return nil, fmt.Errorf("failed to parse devices file %s: %w", path, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("devices file %s defines no devices", path)
	}

	seen := make(map[string]bool)
	devices := make([]scheduler.Device, 0, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("devices file %s: device with empty id", path)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("devices file %s: duplicate device id %s", path, def.ID)
		}
		seen[def.ID] = true

		if def.Endpoint == "" {
			return nil, fmt.Errorf("devices file %s: device %s has no endpoint", path, def.ID)
		}

		name := def.Name
		if name == "" {
			name = def.ID
		}

		locators := make(map[reading.Field]extract.Locator, len(def.Fields))
		for field, loc := range def.Fields {
			if !reading.Known(field) {
				return nil, fmt.Errorf("devices file %s: device %s maps unknown field %q", path, def.ID, field)
			}
			locators[reading.Field(field)] = extract.Locator{
				Selector: loc.Selector,
				JSONKey:  loc.JSONKey,
			}
		}

		devices = append(devices, scheduler.Device{
			ID:       def.ID,
			Name:     name,
			Location: def.Location,
			Endpoint: def.Endpoint,
			WaitFor:  def.WaitFor,
			Locators: locators,
		})
	}

	return devices, nil
}
