package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the capture client.
type Config struct {
	Backend      BackendConfig
	Audio        AudioConfig
	Gesture      GestureConfig
	Silence      SilenceConfig
	Queue        QueueConfig
	Sync         SyncConfig
	Connectivity ConnectivityConfig
	DataDir      string
}

type BackendConfig struct {
	BaseURL string
	APIKey  string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	RingSeconds     int
}

type GestureConfig struct {
	LongPress       time.Duration
	DoubleTapWindow time.Duration
	JitterPx        float64
}

type SilenceConfig struct {
	Timeout   time.Duration
	Threshold float64
}

type QueueConfig struct {
	UploadTimeout time.Duration
}

type SyncConfig struct {
	Interval time.Duration
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration
	Debounce      time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	dataDir := strings.TrimSpace(os.Getenv("LIMECAP_DATA_DIR"))
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.New("could not determine home directory")
		}
		dataDir = filepath.Join(home, ".local", "share", "limecap")
	}

	cfg := Config{
		Backend: BackendConfig{
			BaseURL: envOrDefault("LIMECAP_API_BASE", "http://127.0.0.1:8000/api"),
			APIKey:  strings.TrimSpace(os.Getenv("LIMECAP_API_KEY")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("LIMECAP_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("LIMECAP_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("LIMECAP_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("LIMECAP_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("LIMECAP_CHANNELS", 1),
			RingSeconds:     envOrDefaultInt("LIMECAP_RING_SECONDS", 30),
		},
		Gesture: GestureConfig{
			LongPress:       envDurationMS("LIMECAP_LONG_PRESS_MS", 600),
			DoubleTapWindow: envDurationMS("LIMECAP_DOUBLE_TAP_WINDOW_MS", 300),
			JitterPx:        envOrDefaultFloat("LIMECAP_TAP_JITTER_PX", 10),
		},
		Silence: SilenceConfig{
			Timeout:   envDurationMS("LIMECAP_SILENCE_TIMEOUT_MS", 15000),
			Threshold: envOrDefaultFloat("LIMECAP_SILENCE_THRESHOLD", 0.015),
		},
		Queue: QueueConfig{
			UploadTimeout: envDurationMS("LIMECAP_UPLOAD_TIMEOUT_MS", 30000),
		},
		Sync: SyncConfig{
			Interval: envDurationMS("LIMECAP_SYNC_INTERVAL_MS", 300000),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: envDurationMS("LIMECAP_CONNECTIVITY_INTERVAL_MS", 5000),
			Debounce:      envDurationMS("LIMECAP_CONNECTIVITY_DEBOUNCE_MS", 1500),
		},
		DataDir: dataDir,
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.RingSeconds <= 0 {
		cfg.Audio.RingSeconds = 30
	}
	if cfg.Gesture.LongPress <= 0 {
		cfg.Gesture.LongPress = 600 * time.Millisecond
	}
	if cfg.Gesture.DoubleTapWindow <= 0 {
		cfg.Gesture.DoubleTapWindow = 300 * time.Millisecond
	}
	if cfg.Silence.Timeout <= 0 {
		cfg.Silence.Timeout = 15 * time.Second
	}
	if cfg.Queue.UploadTimeout <= 0 {
		cfg.Queue.UploadTimeout = 30 * time.Second
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationMS(key string, fallbackMS int) time.Duration {
	ms := envOrDefaultInt(key, fallbackMS)
	if ms < 0 {
		ms = fallbackMS
	}
	return time.Duration(ms) * time.Millisecond
}
