package flow

import (
	"testing"

	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type ConfigSuite struct {
	testsuite.Suite
}

func TestConfigSuite(t *testing.T) {
	testsuite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) validFunnelConfig() FlowConfig {
	return FlowConfig{
		Mode:       ModeFunnel,
		ThreadPool: ThreadPoolConfig{MaxWorkers: 2, QueueSize: 10},
		Funnel: &FunnelConfig{
			Sources:          []AdapterRef{{Driver: "mock"}},
			Destination:      AdapterRef{Driver: "mock"},
			DestinationTopic: "out",
		},
	}
}

func (s *ConfigSuite) TestValidFunnelConfigPasses() {
	cfg := s.validFunnelConfig()
	s.NoError(cfg.Validate())
}

func (s *ConfigSuite) TestRejectsMultipleModeBlocks() {
	cfg := s.validFunnelConfig()
	cfg.OneToOne = &OneToOneConfig{Mappings: []TopicMapping{{SourceTopic: "a", DestinationTopic: "b"}}}
	s.Error(cfg.Validate())
}

func (s *ConfigSuite) TestRejectsModeMismatch() {
	cfg := s.validFunnelConfig()
	cfg.Mode = ModeFan
	s.Error(cfg.Validate())
}

func (s *ConfigSuite) TestFanRequiresKnownResolverType() {
	cfg := FlowConfig{
		Mode: ModeFan,
		Fan: &FanConfig{
			Source:              AdapterRef{Driver: "mock"},
			SourceTopic:         "in",
			Destination:         AdapterRef{Driver: "mock"},
			DestinationResolver: DestinationResolverConfig{Type: "bogus"},
		},
	}
	s.Error(cfg.Validate())
}

func (s *ConfigSuite) TestOneToOneRejectsDuplicateSourceTopics() {
	cfg := FlowConfig{
		Mode: ModeOneToOne,
		OneToOne: &OneToOneConfig{
			Source:      AdapterRef{Driver: "mock"},
			Destination: AdapterRef{Driver: "mock"},
			Mappings: []TopicMapping{
				{SourceTopic: "a", DestinationTopic: "x"},
				{SourceTopic: "a", DestinationTopic: "y"},
			},
		},
	}
	s.Error(cfg.Validate())
}

func (s *ConfigSuite) TestBackPressureRejectsLowAboveHigh() {
	cfg := s.validFunnelConfig()
	cfg.BackPressure = BackPressureConfig{Enabled: true, HighWatermark: 0.5, LowWatermark: 0.8}
	s.Error(cfg.Validate())
}

func (s *ConfigSuite) TestBackPressureIgnoredWhenDisabled() {
	cfg := s.validFunnelConfig()
	cfg.BackPressure = BackPressureConfig{Enabled: false, HighWatermark: 0.1, LowWatermark: 0.9}
	s.NoError(cfg.Validate())
}
