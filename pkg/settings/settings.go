// Package settings manages persistent user settings for the evc CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// DefaultInventory is used when no inventory path is set.
const DefaultInventory = "/etc/evc/inventory.yaml"

// Settings holds persistent user preferences
type Settings struct {
	// Inventory is the YAML inventory of nodes and SIPs
	Inventory string `json:"inventory,omitempty"`

	// AuditLog overrides the audit log location
	AuditLog string `json:"audit_log,omitempty"`

	// RESTUsername is used for REST devices whose inventory entry names no user
	RESTUsername string `json:"rest_username,omitempty"`

	// RESTTimeout bounds each REST exchange, in seconds
	RESTTimeout int `json:"rest_timeout,omitempty"`

	// DefaultLoopback is the pseudowire neighbor of last resort
	DefaultLoopback string `json:"default_loopback,omitempty"`

	// RestoreInterface makes CLI removal also reset MTU and shut the port
	RestoreInterface bool `json:"restore_interface,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "evc_settings.json"
	}
	return filepath.Join(home, ".evc", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// GetInventory returns the inventory path (with fallback)
func (s *Settings) GetInventory() string {
	if s.Inventory != "" {
		return s.Inventory
	}
	return DefaultInventory
}

// GetAuditLog returns the audit log path (with fallback next to the settings file)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(filepath.Dir(DefaultSettingsPath()), "audit.log")
}

// Keys lists the names accepted by Set and Get.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type field struct {
	get func(*Settings) string
	set func(*Settings, string) error
}

var fields = map[string]field{
	"inventory": {
		get: func(s *Settings) string { return s.Inventory },
		set: func(s *Settings, v string) error { s.Inventory = v; return nil },
	},
	"audit_log": {
		get: func(s *Settings) string { return s.AuditLog },
		set: func(s *Settings, v string) error { s.AuditLog = v; return nil },
	},
	"rest_username": {
		get: func(s *Settings) string { return s.RESTUsername },
		set: func(s *Settings, v string) error { s.RESTUsername = v; return nil },
	},
	"rest_timeout": {
		get: func(s *Settings) string {
			if s.RESTTimeout == 0 {
				return ""
			}
			return strconv.Itoa(s.RESTTimeout)
		},
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("rest_timeout must be a non-negative number of seconds, got %q", v)
			}
			s.RESTTimeout = n
			return nil
		},
	},
	"default_loopback": {
		get: func(s *Settings) string { return s.DefaultLoopback },
		set: func(s *Settings, v string) error { s.DefaultLoopback = v; return nil },
	},
	"restore_interface": {
		get: func(s *Settings) string {
			if !s.RestoreInterface {
				return ""
			}
			return "true"
		},
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("restore_interface must be true or false, got %q", v)
			}
			s.RestoreInterface = b
			return nil
		},
	},
}

// Get returns the value of a named setting, "" when unset.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting: %s (valid: %v)", key, Keys())
	}
	return f.get(s), nil
}

// Set assigns a named setting from its string form.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting: %s (valid: %v)", key, Keys())
	}
	return f.set(s, value)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
