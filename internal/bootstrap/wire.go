package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"

	"limecap/internal/audio"
	"limecap/internal/config"
	"limecap/internal/connectivity"
	"limecap/internal/gesture"
	"limecap/internal/ports"
	"limecap/internal/providers/lime"
	"limecap/internal/queue"
	"limecap/internal/store"
	"limecap/internal/syncer"
	"limecap/internal/urgency"
	"limecap/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Queue        *queue.Queue
	Urgency      *urgency.Controller
	Connectivity *connectivity.Monitor
	Sync         *syncer.Coordinator
	Capture      *usecase.CaptureController
}

// Build wires all backend dependencies for the current runtime.
func Build(events ports.EventSink, haptics ports.Haptics) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return Services{}, err
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "limecap.db"), logger)
	if err != nil {
		return Services{}, err
	}

	client := lime.NewClient(lime.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
	})
	feed := lime.NewFeed(lime.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
	})

	clk := clock.New()
	uploadQueue := queue.New(st, client, events, logger, cfg.Queue.UploadTimeout)
	urgencyCtl := urgency.NewController(haptics, events)
	coordinator := syncer.NewCoordinator(uploadQueue, client, st, events, logger, clk, cfg.Sync.Interval)

	monitor := connectivity.NewMonitor(client, events, logger, clk,
		cfg.Connectivity.ProbeInterval, cfg.Connectivity.Debounce, func() {
			ctx := context.Background()
			if err := uploadQueue.Flush(ctx); err != nil {
				logger.Warn("reconnect flush failed", "error", err)
			}
			if err := coordinator.Sync(ctx); err != nil {
				logger.Warn("reconnect sync failed", "error", err)
			}
		})

	capture := usecase.NewCaptureController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		client,
		feed,
		uploadQueue,
		urgencyCtl,
		monitor,
		events,
		logger,
		clk,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Gesture:          gestureConfig(cfg),
			SilenceThreshold: cfg.Silence.Threshold,
			SilenceTimeout:   cfg.Silence.Timeout,
			RingSeconds:      cfg.Audio.RingSeconds,
			MediaDir:         filepath.Join(cfg.DataDir, "media"),
		},
	)

	return Services{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Queue:        uploadQueue,
		Urgency:      urgencyCtl,
		Connectivity: monitor,
		Sync:         coordinator,
		Capture:      capture,
	}, nil
}

func gestureConfig(cfg config.Config) gesture.Config {
	return gesture.Config{
		LongPress:       cfg.Gesture.LongPress,
		DoubleTapWindow: cfg.Gesture.DoubleTapWindow,
		JitterPx:        cfg.Gesture.JitterPx,
	}
}
