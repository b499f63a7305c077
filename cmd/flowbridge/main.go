// Command flowbridge is the process entrypoint: it loads a FlowConfig,
// constructs the configured adapters, runs the one flow it describes until
// an interrupt signal arrives, then shuts down gracefully (spec.md §4.12).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/flow/adapters/azureeventhubs"
	"github.com/flowbridge/flowbridge/flow/adapters/iggy"
	"github.com/flowbridge/flowbridge/flow/adapters/kafka"
	"github.com/flowbridge/flowbridge/flow/adapters/mock"
	"github.com/flowbridge/flowbridge/flow/adapters/pubsub"
	"github.com/flowbridge/flowbridge/flow/adapters/pulsar"
	"github.com/flowbridge/flowbridge/internal/apperr"
	"github.com/flowbridge/flowbridge/internal/flowconfig"
	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/obstrace"
)

func main() {
	configPath := flag.String("config", "flowbridge.yaml", "path to the flow configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		obslog.L().Error("flowbridge exited with error", "error", err)
		os.Exit(1)
	}
}

// runner is the common surface FunnelFlow/FanFlow/OneToOneFlow each satisfy.
type runner interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context)
	Metrics() *flow.MetricsRegistry
}

func run(configPath string) error {
	app, err := flowconfig.LoadApp(configPath)
	if err != nil {
		return err
	}

	obslog.Init(app.Logging)

	if app.Tracing.Endpoint != "" {
		shutdownTracing, err := obstrace.Init(app.Tracing)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	f, err := buildFlow(app.Flow)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- f.Run(context.Background()) }()

	select {
	case err := <-runErrCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		obslog.L().Info("shutdown signal received, draining flow")
		f.Shutdown(context.Background())

		if err := <-runErrCh; err != nil {
			return err
		}
	}

	snapshot := f.Metrics().GetMetrics()
	obslog.L().Info("flow stopped", "metrics", snapshot)
	return nil
}

func buildFlow(cfg flow.FlowConfig) (runner, error) {
	switch cfg.Mode {
	case flow.ModeFunnel:
		sources := make([]flow.Source, len(cfg.Funnel.Sources))
		for i, ref := range cfg.Funnel.Sources {
			src, err := buildSource(ref)
			if err != nil {
				return nil, err
			}
			sources[i] = src
		}
		destination, err := buildPublisher(cfg.Funnel.Destination)
		if err != nil {
			return nil, err
		}
		destination = flow.WrapResilientPublisher(destination, cfg.Resilience)
		return flow.NewFunnelFlow(cfg, sources, destination, flow.IdentityTransform)

	case flow.ModeFan:
		source, err := buildSource(cfg.Fan.Source)
		if err != nil {
			return nil, err
		}
		destination, err := buildPublisher(cfg.Fan.Destination)
		if err != nil {
			return nil, err
		}
		destination = flow.WrapResilientPublisher(destination, cfg.Resilience)
		return flow.NewFanFlow(cfg, source, destination, flow.IdentityTransform)

	case flow.ModeOneToOne:
		source, err := buildSource(cfg.OneToOne.Source)
		if err != nil {
			return nil, err
		}
		destination, err := buildPublisher(cfg.OneToOne.Destination)
		if err != nil {
			return nil, err
		}
		destination = flow.WrapResilientPublisher(destination, cfg.Resilience)
		return flow.NewOneToOneFlow(cfg, source, destination, flow.IdentityTransform)

	default:
		return nil, apperr.Config(fmt.Sprintf("unknown flow mode %q", cfg.Mode), nil)
	}
}

func buildSource(ref flow.AdapterRef) (flow.Source, error) {
	switch ref.Driver {
	case "kafka":
		var cfg kafka.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return kafka.NewSource(cfg), nil

	case "pulsar":
		var cfg pulsar.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return pulsar.NewSource(cfg), nil

	case "azureeventhubs":
		var cfg azureeventhubs.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return azureeventhubs.NewSource(cfg), nil

	case "pubsub":
		var cfg pubsub.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return pubsub.NewSource(cfg), nil

	case "iggy":
		var cfg iggy.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return iggy.NewSource(cfg), nil

	case "mock":
		return mock.NewSource(), nil

	default:
		return nil, apperr.Config(fmt.Sprintf("unknown source driver %q", ref.Driver), nil)
	}
}

func buildPublisher(ref flow.AdapterRef) (flow.Publisher, error) {
	switch ref.Driver {
	case "kafka":
		var cfg kafka.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return kafka.NewPublisher(cfg), nil

	case "pulsar":
		var cfg pulsar.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return pulsar.NewPublisher(cfg), nil

	case "azureeventhubs":
		var cfg azureeventhubs.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return azureeventhubs.NewPublisher(cfg), nil

	case "pubsub":
		var cfg pubsub.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return pubsub.NewPublisher(cfg), nil

	case "iggy":
		var cfg iggy.Config
		if err := flowconfig.DecodeConnection(ref.Connection, &cfg); err != nil {
			return nil, err
		}
		return iggy.NewPublisher(cfg), nil

	case "mock":
		return mock.NewPublisher(), nil

	default:
		return nil, apperr.Config(fmt.Sprintf("unknown publisher driver %q", ref.Driver), nil)
	}
}
