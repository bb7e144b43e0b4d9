// Package config loads the endpoint inventory: the named remote hosts a
// tether can be established to.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/tetherctl/internal/transport"
)

type EndpointConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	KeyFile        string `toml:"key_file"`
	KnownHostsFile string `toml:"known_hosts_file"`
}

type Inventory struct {
	Default   string                    `toml:"default"`
	Endpoints map[string]EndpointConfig `toml:"endpoints"`
}

func LoadInventory(path string) (Inventory, error) {
	var inv Inventory
	if err := loadToml(path, &inv); err != nil {
		return Inventory{}, err
	}
	if err := ValidateInventory(inv); err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateInventory(inv Inventory) error {
	if len(inv.Endpoints) == 0 {
		return fmt.Errorf("inventory has no endpoints")
	}
	for name, ep := range inv.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("endpoint %q invalid: %w", name, err)
		}
	}
	if inv.Default != "" {
		if _, ok := inv.Endpoints[inv.Default]; !ok {
			return fmt.Errorf("default endpoint %q not defined", inv.Default)
		}
	}
	return nil
}

func ValidateEndpoint(ep EndpointConfig) error {
	if strings.TrimSpace(ep.Host) == "" {
		return fmt.Errorf("missing host")
	}
	if strings.TrimSpace(ep.User) == "" {
		return fmt.Errorf("missing user")
	}
	if ep.Port < 0 || ep.Port > 65535 {
		return fmt.Errorf("port out of range: %d", ep.Port)
	}
	return nil
}

// Resolve picks a named endpoint, falling back to the inventory default,
// or to the only entry when the file defines exactly one.
func (inv Inventory) Resolve(name string) (transport.Endpoint, error) {
	if name == "" {
		name = inv.Default
	}
	if name == "" && len(inv.Endpoints) == 1 {
		for only := range inv.Endpoints {
			name = only
		}
	}
	ep, ok := inv.Endpoints[name]
	if !ok {
		return transport.Endpoint{}, fmt.Errorf("endpoint %q not in inventory", name)
	}
	return Convert(ep), nil
}
