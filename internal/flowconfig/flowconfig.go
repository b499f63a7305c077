// Package flowconfig loads and validates a flow.FlowConfig from a YAML
// file (spec.md §3, §6), grounded on the teacher's pkg/config loader
// pattern: decode with gopkg.in/yaml.v3, then run struct-tag validation
// with go-playground/validator/v10 before handing the config to its own
// Validate().
package flowconfig

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
)

var validate = validator.New()

// Load reads path, decodes it as YAML into a flow.FlowConfig, and runs both
// struct-tag validation and flow.FlowConfig.Validate's cross-field checks.
func Load(path string) (*flow.FlowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Config("flowconfig: failed to read "+path, err)
	}

	var cfg flow.FlowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Config("flowconfig: failed to parse "+path, err)
	}

	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, apperr.Config("flowconfig: validation failed for "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DecodeConnection re-marshals an AdapterRef.Connection map (opaque YAML
// data the flow engine never interprets, spec.md §6) into a driver-specific
// config struct. It round-trips through YAML rather than requiring a
// separate mapstructure-style dependency, since every driver config already
// carries yaml tags for Load's benefit.
func DecodeConnection(conn map[string]interface{}, out interface{}) error {
	data, err := yaml.Marshal(conn)
	if err != nil {
		return apperr.Config("flowconfig: failed to re-marshal adapter connection block", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return apperr.Config("flowconfig: failed to decode adapter connection block", err)
	}
	return nil
}

// applyDefaults fills in the zero-value defaults spec.md §3 implies for an
// operator who omits thread_pool or back_pressure entirely.
func applyDefaults(cfg *flow.FlowConfig) {
	if cfg.ThreadPool.MaxWorkers == 0 {
		cfg.ThreadPool.MaxWorkers = 4
	}
	if cfg.ThreadPool.QueueSize == 0 {
		cfg.ThreadPool.QueueSize = 1000
	}
	if cfg.BackPressure.HighWatermark == 0 {
		cfg.BackPressure.HighWatermark = 0.8
	}
	if cfg.BackPressure.Enabled && cfg.BackPressure.LowWatermark == 0 {
		cfg.BackPressure.LowWatermark = 0.5
	}
}
