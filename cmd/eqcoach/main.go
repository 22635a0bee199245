package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/petems/eqcoach/internal/app"
	"github.com/petems/eqcoach/internal/audio"
	"github.com/petems/eqcoach/internal/camera"
	"github.com/petems/eqcoach/internal/capture"
	"github.com/petems/eqcoach/internal/config"
	"github.com/petems/eqcoach/internal/inference"
	"github.com/petems/eqcoach/internal/logging"
	"github.com/petems/eqcoach/internal/publish"
	"github.com/petems/eqcoach/internal/statusapi"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize microphone
	source, err := audio.NewPortAudioSource(cfg.Audio.DeviceID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer source.Close()

	if devices, err := source.ListDevices(); err == nil {
		for _, d := range devices {
			log.Debug().Str("device", d.Name).Bool("default", d.Default).Msg("Audio input")
		}
	}

	recorder := audio.NewRecorder(source, cfg.AudioFormat(), cfg.Capture.IntervalSeconds, log)

	// Initialize camera
	backend := camera.NewGStreamerBackend(cfg.Camera.Device, cfg.Camera.SensorOrientation, log)
	cam := camera.NewSession(backend, camera.Config{
		Width:           cfg.Capture.ImageWidth,
		Height:          cfg.Capture.ImageHeight,
		DisplayRotation: func() int { return cfg.Camera.DisplayRotation },
	}, log)

	// Initialize inference client
	client := inference.New(inference.Config{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Timeout(),
	}, log)
	defer client.Shutdown()

	orchestrator := capture.New(capture.Config{
		Camera:   cam,
		Audio:    recorder,
		Analyzer: client,
		Logger:   log,
	})

	application := app.New(app.Config{
		Capture:  orchestrator,
		Interval: cfg.Interval(),
		Logger:   log,
	})

	// Optional observers
	var api *statusapi.Server
	if cfg.Status.Addr != "" {
		api = statusapi.New(application, log)
		application.AddStatusUpdater(api.Hub())
		go func() {
			if err := api.Start(cfg.Status.Addr); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		mqttClient, err := publish.Connect(publish.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("MQTT disabled")
		} else {
			defer mqttClient.Disconnect(250)
			publisher := publish.NewPublisher(mqttClient, cfg.MQTT.StatusTopic, log)
			application.AddStatusUpdater(publisher)
			go publisher.Start(ctx)
		}
	}

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("server", cfg.Server.BaseURL).
		Msg("eqcoach starting...")

	if cfg.AutoStart {
		application.StartSession()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = application.Shutdown(shutdownCtx)
	if api != nil {
		err = multierr.Append(err, api.Shutdown(shutdownCtx))
	}
	if err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
