// Configuration surface plus an additive declarative manifest format
// for handler registration, expanding the bare in-memory-slice
// approach with an optional YAML file so an operator can add a
// handler without a code change.
package sagabus

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig is the environment-variable configuration surface.
type EnvConfig struct {
	BusHost      string
	BusPort      int
	BusPassword  string
	BusDB        int
	MissionTopic string
	LogLevel     string
}

// LoadEnvConfig reads environment variables, applying the
// documented defaults: BUS_HOST=localhost, BUS_PORT=6379,
// MISSION_TOPIC=mission:commands, LOG_LEVEL=DEBUG.
func LoadEnvConfig() EnvConfig {
	cfg := EnvConfig{
		BusHost:      "localhost",
		BusPort:      6379,
		MissionTopic: MissionStream,
		LogLevel:     "DEBUG",
	}

	if v := os.Getenv("BUS_HOST"); v != "" {
		cfg.BusHost = v
	}
	if v := os.Getenv("BUS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.BusPort = p
		}
	}
	if v := os.Getenv("BUS_PASSWORD"); v != "" {
		cfg.BusPassword = v
	}
	if v := os.Getenv("BUS_DB"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.BusDB = d
		}
	}
	if v := os.Getenv("MISSION_TOPIC"); v != "" {
		cfg.MissionTopic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// BusConfig converts the environment config into the Config the bus
// client / dispatcher expect.
func (e EnvConfig) BusConfig(prefix string) Config {
	return Config{
		Host:     e.BusHost,
		Port:     e.BusPort,
		Password: e.BusPassword,
		DB:       e.BusDB,
		Prefix:   prefix,
	}
}

// HandlerManifestEntry is one handler descriptor as it appears in a YAML
// manifest. Fn is resolved by name against a caller-supplied registry of
// known handler functions, since YAML cannot carry a Go closure.
type HandlerManifestEntry struct {
	Name      string `yaml:"name"`
	Stream    string `yaml:"stream"`
	Group     string `yaml:"group"`
	EventType string `yaml:"event_type,omitempty"`
	FnName    string `yaml:"fn"`
}

// HandlerManifest is the top-level YAML document shape.
type HandlerManifest struct {
	Handlers []HandlerManifestEntry `yaml:"handlers"`
}

// LoadHandlerManifest parses a YAML manifest from path and registers each
// entry against reg, resolving Fn by looking FnName up in fns. Entries
// whose FnName has no match in fns are reported as an error rather than
// silently skipped, since an operator-edited manifest referencing a
// typo'd handler name is a configuration bug, not a runtime condition to
// degrade through.
func LoadHandlerManifest(path string, fns map[string]Handler) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load handler manifest: %w", err)
	}

	var manifest HandlerManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse handler manifest: %w", err)
	}

	reg := NewRegistry()
	for _, entry := range manifest.Handlers {
		fn, ok := fns[entry.FnName]
		if !ok {
			return nil, fmt.Errorf("handler manifest: unknown fn %q for handler %q", entry.FnName, entry.Name)
		}
		if err := reg.Register(HandlerDescriptor{
			Name:      entry.Name,
			Stream:    entry.Stream,
			Group:     entry.Group,
			EventType: entry.EventType,
			Fn:        fn,
		}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// SagaStepManifestEntry is one saga step as it appears in YAML. Payload
// builders and compensations, like handler functions, are resolved by
// name since they're Go closures.
type SagaStepManifestEntry struct {
	Name               string  `yaml:"name"`
	CommandStream      string  `yaml:"command_stream"`
	ReplyPrefix        string  `yaml:"reply_prefix"`
	EventType          string  `yaml:"event_type"`
	PayloadBuilderName string  `yaml:"payload_builder,omitempty"`
	CompensationName   string  `yaml:"compensation,omitempty"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds,omitempty"`
}

// SagaManifest is the top-level YAML document shape for a declarative
// saga definition.
type SagaManifest struct {
	Steps []SagaStepManifestEntry `yaml:"steps"`
}

// LoadSagaManifest parses a YAML saga definition from path, resolving
// named payload builders and compensations against the supplied maps.
func LoadSagaManifest(path string, builders map[string]PayloadBuilder, compensations map[string]CompensationFunc) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load saga manifest: %w", err)
	}

	var manifest SagaManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse saga manifest: %w", err)
	}

	steps := make([]Step, 0, len(manifest.Steps))
	for _, entry := range manifest.Steps {
		step := Step{
			Name:          entry.Name,
			CommandStream: entry.CommandStream,
			ReplyPrefix:   entry.ReplyPrefix,
			EventType:     entry.EventType,
		}
		if entry.TimeoutSeconds > 0 {
			step.Timeout = time.Duration(entry.TimeoutSeconds * float64(time.Second))
		}
		if entry.PayloadBuilderName != "" {
			b, ok := builders[entry.PayloadBuilderName]
			if !ok {
				return nil, fmt.Errorf("saga manifest: unknown payload_builder %q for step %q", entry.PayloadBuilderName, entry.Name)
			}
			step.PayloadBuilder = b
		}
		if entry.CompensationName != "" {
			c, ok := compensations[entry.CompensationName]
			if !ok {
				return nil, fmt.Errorf("saga manifest: unknown compensation %q for step %q", entry.CompensationName, entry.Name)
			}
			step.Compensation = c
		}
		steps = append(steps, step)
	}

	return steps, nil
}
