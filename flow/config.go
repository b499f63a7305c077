package flow

import (
	"time"

	"github.com/flowbridge/flowbridge/internal/apperr"
)

// Mode selects one of the three topologies (spec.md §3).
type Mode string

const (
	ModeFunnel    Mode = "funnel"
	ModeFan       Mode = "fan"
	ModeOneToOne  Mode = "one_to_one"
)

// ResolverType selects how FanConfig resolves a destination topic per
// message (spec.md §4.7).
type ResolverType string

const (
	ResolverHeader     ResolverType = "header"
	ResolverPayloadKey ResolverType = "payload_key"
)

// ThreadPoolConfig controls worker and queue sizing (spec.md §3).
type ThreadPoolConfig struct {
	MaxWorkers int `yaml:"max_workers" validate:"required,min=1"`
	QueueSize  int `yaml:"queue_size" validate:"required,min=1"`
}

// BackPressureConfig controls the watermark gate (spec.md §4.4).
type BackPressureConfig struct {
	Enabled          bool    `yaml:"enabled"`
	HighWatermark    float64 `yaml:"queue_high_watermark" validate:"gt=0,lte=1"`
	LowWatermark     float64 `yaml:"queue_low_watermark" validate:"gte=0,ltefield=HighWatermark"`
}

// DestinationResolverConfig configures fan-mode routing (spec.md §3).
type DestinationResolverConfig struct {
	Type ResolverType `yaml:"type"`
	Key  string       `yaml:"key"`
}

// FunnelConfig is the mode-specific block for funnel flows (spec.md §4.6).
type FunnelConfig struct {
	Sources           []AdapterRef `yaml:"sources" validate:"required,min=1,dive"`
	Destination       AdapterRef   `yaml:"destination"`
	DestinationTopic  string       `yaml:"destination_topic" validate:"required"`
}

// FanConfig is the mode-specific block for fan flows (spec.md §4.7).
type FanConfig struct {
	Source             AdapterRef                `yaml:"source"`
	SourceTopic        string                    `yaml:"source_topic" validate:"required"`
	Destination        AdapterRef                `yaml:"destination"`
	DestinationResolver DestinationResolverConfig `yaml:"destination_resolver"`
}

// TopicMapping is one source→destination pair for one-to-one flows.
type TopicMapping struct {
	SourceTopic      string `yaml:"source_topic" validate:"required"`
	DestinationTopic string `yaml:"destination_topic" validate:"required"`
}

// OneToOneConfig is the mode-specific block for one-to-one flows (spec.md §4.8).
type OneToOneConfig struct {
	Source      AdapterRef     `yaml:"source"`
	Destination AdapterRef     `yaml:"destination"`
	Mappings    []TopicMapping `yaml:"mappings" validate:"required,min=1,dive"`
}

// ResilienceConfig wraps a destination Publisher in retry and circuit
// breaker protection (spec.md §7). Both are off by default; a deployment
// talking to a flaky destination turns them on per-flow.
type ResilienceConfig struct {
	CircuitBreakerEnabled   bool          `yaml:"circuit_breaker_enabled"`
	CircuitBreakerThreshold int64         `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `yaml:"circuit_breaker_timeout"`

	RetryEnabled     bool          `yaml:"retry_enabled"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

// AdapterRef names a broker driver and passes its connection block through
// unmodified to the adapter's constructor as an opaque mapping — the flow
// engine never interprets connection fields (spec.md §6).
type AdapterRef struct {
	Driver     string                 `yaml:"driver" validate:"required"`
	Connection map[string]interface{} `yaml:"connection"`
}

// FlowConfig is the configuration record delivered by the external loader
// (spec.md §3). Exactly one of Funnel/Fan/OneToOne is populated, selected
// by Mode.
type FlowConfig struct {
	Mode           Mode               `yaml:"mode" validate:"required,oneof=funnel fan one_to_one"`
	ThreadPool     ThreadPoolConfig   `yaml:"thread_pool"`
	BackPressure   BackPressureConfig `yaml:"back_pressure"`
	ProcessorClass string             `yaml:"processor_class"`

	// CommitAfterPublish resolves the open question in spec.md §9: when
	// false (the default / reference behavior), the consumer commits a
	// message right after it is handed off into Qd — at-least-once
	// between source and engine, at-most-once from engine to
	// destination. When true, commit is deferred to the publish worker's
	// completion of a successful publish instead, trading a crash window
	// (duplicate redelivery risk on worker crash between Qd and publish)
	// for not losing messages that never made it to the destination.
	CommitAfterPublish bool `yaml:"commit_after_publish"`

	// Resilience wraps every destination Publisher with retry and circuit
	// breaker protection before it is handed to a topology constructor
	// (spec.md §7, destination delivery failures).
	Resilience ResilienceConfig `yaml:"resilience"`

	Funnel   *FunnelConfig   `yaml:"funnel,omitempty"`
	Fan      *FanConfig      `yaml:"fan,omitempty"`
	OneToOne *OneToOneConfig `yaml:"one_to_one,omitempty"`
}

// Validate checks the invariants spec.md §3 assigns to FlowConfig beyond
// what struct tags can express: exactly one mode-specific block is
// populated, and it matches Mode.
func (c *FlowConfig) Validate() error {
	blocks := 0
	if c.Funnel != nil {
		blocks++
	}
	if c.Fan != nil {
		blocks++
	}
	if c.OneToOne != nil {
		blocks++
	}
	if blocks != 1 {
		return apperr.Config("exactly one of funnel, fan, or one_to_one must be set", nil)
	}

	switch c.Mode {
	case ModeFunnel:
		if c.Funnel == nil {
			return apperr.Config("mode is funnel but funnel block is not set", nil)
		}
	case ModeFan:
		if c.Fan == nil {
			return apperr.Config("mode is fan but fan block is not set", nil)
		}
		switch c.Fan.DestinationResolver.Type {
		case ResolverHeader, ResolverPayloadKey:
		default:
			return apperr.Config("fan.destination_resolver.type must be header or payload_key", nil)
		}
	case ModeOneToOne:
		if c.OneToOne == nil {
			return apperr.Config("mode is one_to_one but one_to_one block is not set", nil)
		}
		seen := make(map[string]struct{}, len(c.OneToOne.Mappings))
		for _, m := range c.OneToOne.Mappings {
			if _, dup := seen[m.SourceTopic]; dup {
				return apperr.Config("duplicate source_topic in one_to_one.mappings: "+m.SourceTopic, nil)
			}
			seen[m.SourceTopic] = struct{}{}
		}
	default:
		return apperr.Config("unknown mode: "+string(c.Mode), nil)
	}

	if c.BackPressure.Enabled && c.BackPressure.LowWatermark >= c.BackPressure.HighWatermark {
		return apperr.Config("back_pressure.queue_low_watermark must be < queue_high_watermark", nil)
	}

	return nil
}
