package config

import (
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

const (
	// StateInstalled converges a profile onto the host.
	StateInstalled = "installed"
	// StateAbsent removes a profile from the host.
	StateAbsent = "absent"

	defaultParallel      = 4
	defaultTempNamespace = "profilestate"
)

// Config represents a full profile manifest.
type Config struct {
	Version     string    `yaml:"version" toml:"version" validate:"required,semver"`
	Name        string    `yaml:"name" toml:"name" validate:"required,min=1,max=100"`
	Description string    `yaml:"description,omitempty" toml:"description"`
	Settings    Settings  `yaml:"settings,omitempty" toml:"settings"`
	Profiles    []Profile `yaml:"profiles" toml:"profiles" validate:"required,min=1,dive"`
}

// Settings holds run-wide parameters. Command-line flags take precedence
// over DryRun, Verbose and Force.
type Settings struct {
	DryRun          bool   `yaml:"dry_run,omitempty" toml:"dry_run"`
	Verbose         bool   `yaml:"verbose,omitempty" toml:"verbose"`
	Force           bool   `yaml:"force,omitempty" toml:"force"`
	Parallel        int    `yaml:"parallel,omitempty" toml:"parallel" validate:"omitempty,min=1,max=32"`
	ContinueOnError bool   `yaml:"continue_on_error,omitempty" toml:"continue_on_error"`
	TempNamespace   string `yaml:"temp_namespace,omitempty" toml:"temp_namespace" validate:"omitempty,namespace"`
	TempDir         string `yaml:"temp_dir,omitempty" toml:"temp_dir"`
	KeepTemp        bool   `yaml:"keep_temp,omitempty" toml:"keep_temp"`
	ProfilesBinary  string `yaml:"profiles_binary,omitempty" toml:"profiles_binary"`
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" toml:"metrics_textfile"`
}

// Profile is the desired state of one configuration profile.
type Profile struct {
	ID                string           `yaml:"id" toml:"id" validate:"required,payload_id"`
	State             string           `yaml:"state,omitempty" toml:"state" validate:"oneof=installed absent"`
	Force             bool             `yaml:"force,omitempty" toml:"force"`
	Description       string           `yaml:"description,omitempty" toml:"description"`
	DisplayName       string           `yaml:"display_name,omitempty" toml:"display_name"`
	Organization      string           `yaml:"organization,omitempty" toml:"organization"`
	RemovalDisallowed bool             `yaml:"removal_disallowed,omitempty" toml:"removal_disallowed"`
	Scope             string           `yaml:"scope,omitempty" toml:"scope" validate:"omitempty,oneof=System User"`
	Content           []map[string]any `yaml:"content,omitempty" toml:"content"`
	Options           map[string]any   `yaml:"options,omitempty" toml:"options"`
}

// Desired maps the manifest entry onto the reconciler's desired state.
func (p Profile) Desired() state.DesiredState {
	return state.DesiredState{
		Description:       p.Description,
		DisplayName:       p.DisplayName,
		Organization:      p.Organization,
		RemovalDisallowed: p.RemovalDisallowed,
		Scope:             p.Scope,
		Content:           p.Content,
		Options:           p.Options,
	}
}

// Lookup returns the profile with the given identifier.
func (c *Config) Lookup(id string) (Profile, bool) {
	if c == nil {
		return Profile{}, false
	}
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// applyDefaults fills values the manifest may omit.
func (c *Config) applyDefaults() {
	if c.Settings.Parallel <= 0 {
		c.Settings.Parallel = defaultParallel
	}
	if c.Settings.TempNamespace == "" {
		c.Settings.TempNamespace = defaultTempNamespace
	}
	for i := range c.Profiles {
		if c.Profiles[i].State == "" {
			c.Profiles[i].State = StateInstalled
		}
	}
}
