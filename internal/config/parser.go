package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	apperrors "github.com/alexisbeaulieu97/profilestate/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig loads a manifest from disk, applies defaults, validates it, and
// returns the resulting model. Files ending in .toml are decoded as TOML,
// everything else as YAML.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := decodeTOML(path, data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := decodeYAML(path, data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return apperrors.NewParseError(path, extractLine(err), err)
	}
	return nil
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return apperrors.NewParseError(path, perr.Position.Line, err)
		}
		var perrPtr *toml.ParseError
		if errors.As(err, &perrPtr) {
			return apperrors.NewParseError(path, perrPtr.Position.Line, err)
		}
		return apperrors.NewParseError(path, 0, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			// Keys below free-form maps are reported too; only top-level
			// schema keys are unknown.
			if isFreeForm(key) {
				continue
			}
			keys = append(keys, key.String())
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			return apperrors.NewParseError(path, 0, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
		}
	}
	return nil
}

func isFreeForm(key toml.Key) bool {
	for _, part := range key {
		if part == "content" || part == "options" {
			return true
		}
	}
	return false
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
