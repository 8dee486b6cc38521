package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/bridge"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/config"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/forward"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/journal"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/pid"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/pipeline"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/retry"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/serial"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/telemetry"
)

// run owns the process lifetime: everything is built before the loop starts,
// and the loop's Shutdown tears it down in order.
func run(parent context.Context, cfg *config.Config) error {
	errFactory := errors.New()
	log := logger.Default()

	lock, err := pid.Acquire(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel)

	loop, err := build(ctx, cfg, log)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	runErr := loop.Run(ctx)
	if runErr != nil {
		runErr = errFactory.Wrap(errors.ErrMainLoop, runErr)
	}

	return errors.Join(runErr, loop.Shutdown())
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal")
		cancel()
	case <-ctx.Done():
	}
}

// build opens every component the configured mode needs. On failure whatever
// was already opened is closed again.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *bridge.Loop, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				log.Debug().Err(cerr).Msg("Cleanup after failed startup")
			}
		}
	}()

	metrics, err := telemetry.New()
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Listen != "" {
		if err := metrics.Serve(ctx, cfg.Telemetry.Listen, log.With("telemetry")); err != nil {
			return nil, err
		}
	}

	rec, err := journal.Open(journal.Config{
		Enabled:       cfg.Journal.Enabled,
		DBPath:        cfg.Journal.DBPath,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, log.With("journal"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, rec.Close)

	deps := bridge.Deps{
		Journal: rec,
		Metrics: metrics,
		Out:     os.Stdout,
	}

	switch cfg.Mode {
	case config.ModePredict:
		p, err := pipeline.Load(pipeline.Artifacts{
			Scaler: cfg.Model.Scaler,
			Forest: cfg.Model.Forest,
			Labels: cfg.Model.Labels,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Int("classes", p.Classes()).Msg("Model loaded")
		deps.Classifier = p

	case config.ModeGateway:
		sink, publisher, err := buildForwarder(ctx, cfg, rec, metrics, log)
		if err != nil {
			return nil, err
		}
		closers = append(closers, sink.Close)
		deps.Forwarder = sink
		deps.States = publisher.States()
		deps.QueueDepth = publisher.QueueDepth
	}

	port, err := serial.Open(serial.Config{
		Device:        cfg.Serial.Device,
		BaudRate:      cfg.Serial.BaudRate,
		ReadTimeout:   cfg.Serial.ReadTimeout,
		MaxLineLength: cfg.Serial.MaxLineLength,
	})
	if err != nil {
		return nil, err
	}
	source := serial.NewLineSource(port, cfg.Serial.MaxLineLength, log.With("serial"))
	closers = append(closers, source.Close)
	deps.Source = source

	log.Info().
		Str("device", cfg.Serial.Device).
		Int("baud_rate", cfg.Serial.BaudRate).
		Msg("Serial device opened")

	return bridge.New(cfg.Mode, cfg.Serial.PollInterval, deps, log.With("bridge"))
}

func buildForwarder(
	ctx context.Context,
	cfg *config.Config,
	rec journal.Recorder,
	metrics *telemetry.Metrics,
	log logger.Logger,
) (*forward.Sink, *forward.Publisher, error) {
	b := cfg.Broker

	tlsCfg, err := forward.LoadTLSConfig(b.CAFile, b.Host)
	if err != nil {
		return nil, nil, err
	}

	store, err := forward.OpenStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	broker := forward.NewMQTTBroker(forward.MQTTConfig{
		Host:           b.Host,
		Port:           b.Port,
		Topic:          b.Topic,
		Username:       b.Username,
		Password:       b.Password,
		ClientID:       b.ClientID,
		TLS:            tlsCfg,
		KeepAlive:      b.KeepAlive,
		ConnectTimeout: b.ConnectTimeout,
		AckTimeout:     b.AckTimeout,
	}, log.With("mqtt"))

	publisher := forward.NewPublisher(broker, forward.PublisherConfig{
		QueueSize:       b.QueueSize,
		PublishAttempts: b.PublishAttempts,
		Retry: retry.Policy{
			MaxAttempts:  b.Retry.MaxAttempts,
			InitialDelay: b.Retry.InitialDelay,
			MaxDelay:     b.Retry.MaxDelay,
			Jitter:       true,
		},
		Cooldown:     b.Retry.Cooldown,
		DrainTimeout: b.DrainTimeout,
		OnOutcome:    bridge.PublishReporter(rec, metrics, log.With("publisher")),
	}, log.With("publisher"))
	publisher.Start(ctx)

	log.Info().
		Str("store", store.Path()).
		Str("broker", b.Host).
		Str("topic", b.Topic).
		Str("client_id", b.ClientID).
		Msg("Forwarding enabled")

	return forward.NewSink(store, publisher), publisher, nil
}
