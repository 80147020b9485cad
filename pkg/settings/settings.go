// Package settings manages persistent user settings for the junotron CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newtron-network/junotron/pkg/util"
)

// Settings holds persistent user preferences. Command-line flags override
// them.
type Settings struct {
	// Inventory is the device inventory YAML used when -I is not given.
	Inventory string `json:"inventory,omitempty"`

	// DefaultDevice is used when -d is not given.
	DefaultDevice string `json:"default_device,omitempty"`

	// Commands is the predefined command list for run and inspect.
	Commands string `json:"commands,omitempty"`

	// FirewallFilter is the filter whose terms the firewall domain manages.
	FirewallFilter string `json:"firewall_filter,omitempty"`

	// StaticNextHop is the next-hop for added static routes.
	StaticNextHop string `json:"static_next_hop,omitempty"`

	// StaticAttributes and BlackholeAttributes are extra statements set on
	// every added route, e.g. "tag 888".
	StaticAttributes    []string `json:"static_attributes,omitempty"`
	BlackholeAttributes []string `json:"blackhole_attributes,omitempty"`

	KnownHosts string `json:"known_hosts,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	AuditLog   string `json:"audit_log,omitempty"`
	// AuditRedis is host:port of a Redis server that receives a copy of
	// every audit event.
	AuditRedis string `json:"audit_redis,omitempty"`

	// Timeouts, as Go durations ("10s").
	IdleTimeout    string `json:"idle_timeout,omitempty"`
	OverallTimeout string `json:"overall_timeout,omitempty"`
	RefreshDelay   string `json:"refresh_delay,omitempty"`

	RetryAttempts int `json:"retry_attempts,omitempty"`

	// ExecuteByDefault skips the dry-run preview. Dangerous.
	ExecuteByDefault bool `json:"execute_by_default,omitempty"`

	// LastDevice is the device used most recently.
	LastDevice string `json:"last_device,omitempty"`
}

// Dir returns ~/.junotron.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".junotron"
	}
	return filepath.Join(home, ".junotron")
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to path, creating its directory.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

// AuditLogPath returns the audit log path, defaulting under Dir.
func (s *Settings) AuditLogPath() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(Dir(), "audit.log")
}

// TranscriptPath returns the raw transcript path, defaulting under Dir.
func (s *Settings) TranscriptPath() string {
	if s.Transcript != "" {
		return s.Transcript
	}
	return filepath.Join(Dir(), "transcript.log")
}

// KnownHostsPath returns the known_hosts file for SSH host keys.
func (s *Settings) KnownHostsPath() string {
	if s.KnownHosts != "" {
		return s.KnownHosts
	}
	return filepath.Join(Dir(), "known_hosts")
}

// Duration parses one of the duration settings, falling back to def when
// unset or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		util.Warnf("settings: bad duration %q, using %s", value, def)
		return def
	}
	return d
}

// field binds a settings key to its getter and setter.
type field struct {
	get func(s *Settings) string
	set func(s *Settings, v string) error
}

func stringField(p func(s *Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error { *p(s) = v; return nil },
	}
}

func durationField(p func(s *Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("%q is not a duration (e.g. 10s)", v)
			}
			*p(s) = v
			return nil
		},
	}
}

func listField(p func(s *Settings) *[]string) field {
	return field{
		get: func(s *Settings) string { return strings.Join(*p(s), ",") },
		set: func(s *Settings, v string) error { *p(s) = util.SplitCommaSeparated(v); return nil },
	}
}

var fields = map[string]field{
	"inventory":       stringField(func(s *Settings) *string { return &s.Inventory }),
	"device":          stringField(func(s *Settings) *string { return &s.DefaultDevice }),
	"commands":        stringField(func(s *Settings) *string { return &s.Commands }),
	"firewall_filter": stringField(func(s *Settings) *string { return &s.FirewallFilter }),
	"static_next_hop": {
		get: func(s *Settings) string { return s.StaticNextHop },
		set: func(s *Settings, v string) error {
			if v != "" && !util.IsValidIPv4(v) {
				return fmt.Errorf("%q is not an IPv4 address", v)
			}
			s.StaticNextHop = v
			return nil
		},
	},
	"static_attributes":    listField(func(s *Settings) *[]string { return &s.StaticAttributes }),
	"blackhole_attributes": listField(func(s *Settings) *[]string { return &s.BlackholeAttributes }),
	"known_hosts":          stringField(func(s *Settings) *string { return &s.KnownHosts }),
	"transcript":           stringField(func(s *Settings) *string { return &s.Transcript }),
	"audit_log":            stringField(func(s *Settings) *string { return &s.AuditLog }),
	"audit_redis":          stringField(func(s *Settings) *string { return &s.AuditRedis }),
	"idle_timeout":         durationField(func(s *Settings) *string { return &s.IdleTimeout }),
	"overall_timeout":      durationField(func(s *Settings) *string { return &s.OverallTimeout }),
	"refresh_delay":        durationField(func(s *Settings) *string { return &s.RefreshDelay }),
	"retry_attempts": {
		get: func(s *Settings) string {
			if s.RetryAttempts == 0 {
				return ""
			}
			return strconv.Itoa(s.RetryAttempts)
		},
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("%q is not a positive integer", v)
			}
			s.RetryAttempts = n
			return nil
		},
	},
	"execute_by_default": {
		get: func(s *Settings) string { return strconv.FormatBool(s.ExecuteByDefault) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%q is not a boolean", v)
			}
			s.ExecuteByDefault = b
			return nil
		},
	},
}

// Keys returns the settable keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key as text.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return f.get(s), nil
}

// Set parses and stores value under key.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return f.set(s, value)
}
