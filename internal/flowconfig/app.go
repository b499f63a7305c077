package flowconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/obstrace"
)

// AppConfig is the top-level document cmd/flowbridge reads: ambient-stack
// configuration alongside the single FlowConfig it runs (spec.md §4.12).
type AppConfig struct {
	Logging Logging         `yaml:"logging"`
	Tracing Tracing         `yaml:"tracing"`
	Flow    flow.FlowConfig `yaml:"flow"`
}

// Logging mirrors obslog.Config with a yaml-friendly doc anchor.
type Logging = obslog.Config

// Tracing mirrors obstrace.Config with a yaml-friendly doc anchor.
type Tracing = obstrace.Config

// LoadApp reads path as a full AppConfig document (logging + tracing +
// flow), applying the same defaults and validation as Load.
func LoadApp(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Config("flowconfig: failed to read "+path, err)
	}

	var app AppConfig
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, apperr.Config("flowconfig: failed to parse "+path, err)
	}

	applyDefaults(&app.Flow)

	if err := validate.Struct(&app.Flow); err != nil {
		return nil, apperr.Config("flowconfig: validation failed for "+path, err)
	}
	if err := app.Flow.Validate(); err != nil {
		return nil, err
	}

	return &app, nil
}
