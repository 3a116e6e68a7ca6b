package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/battswap/boothd/core/metrics"
	"github.com/battswap/boothd/infra/mqtt"
)

type Config struct {
	API       APIConfig       `json:"api"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Metrics   metrics.Config  `json:"metrics"`
	Audit     AuditConfig     `json:"audit"`
	Sentry    SentryConfig    `json:"sentry"`
	Booths    []BoothConfig   `json:"booths"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("B_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "b_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.API.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Telemetry.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Audit.SetDefaults()
	if err := cfg.Audit.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the booth inventory for duplicates and missing fields.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Booths))
	for _, b := range c.Booths {
		if b.ID == "" {
			return fmt.Errorf("booth id is required")
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate booth id %s", b.ID)
		}
		seen[b.ID] = struct{}{}
		slots := make(map[string]struct{}, len(b.Slots))
		for _, s := range b.Slots {
			if s == "" {
				return fmt.Errorf("booth %s: slot id is required", b.ID)
			}
			if _, dup := slots[s]; dup {
				return fmt.Errorf("booth %s: duplicate slot id %s", b.ID, s)
			}
			slots[s] = struct{}{}
		}
	}
	return nil
}
