package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/petems/eqcoach/internal/model"
)

type Config struct {
	LogLevel  string        `json:"log_level"`
	AutoStart bool          `json:"auto_start"`
	Server    ServerConfig  `json:"server"`
	Capture   CaptureConfig `json:"capture"`
	Camera    CameraConfig  `json:"camera"`
	Audio     AudioConfig   `json:"audio"`
	Status    StatusConfig  `json:"status"`
	MQTT      MQTTConfig    `json:"mqtt"`
}

type ServerConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type CaptureConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	ImageWidth      int `json:"image_width"`
	ImageHeight     int `json:"image_height"`
}

type CameraConfig struct {
	Device            string `json:"device"`             // V4L2 node of the front sensor
	SensorOrientation int    `json:"sensor_orientation"` // degrees, clockwise
	DisplayRotation   int    `json:"display_rotation"`   // 0, 90, 180 or 270
}

type AudioConfig struct {
	DeviceID   string `json:"device_id"` // empty = default input
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

type StatusConfig struct {
	Addr string `json:"addr"` // empty disables the local API
}

type MQTTConfig struct {
	Broker      string `json:"broker"` // empty disables publishing
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	StatusTopic string `json:"status_topic"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		AutoStart: true,
		Server: ServerConfig{
			BaseURL:        "http://192.168.1.195:8000",
			TimeoutSeconds: 8,
		},
		Capture: CaptureConfig{
			IntervalSeconds: 4,
			ImageWidth:      640,
			ImageHeight:     480,
		},
		Camera: CameraConfig{
			Device:            "/dev/video0",
			SensorOrientation: 270,
			DisplayRotation:   0,
		},
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: model.DefaultAudioFormat.SampleRate,
			Channels:   model.DefaultAudioFormat.Channels,
			BitDepth:   model.DefaultAudioFormat.BitDepth,
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:8787",
		},
		MQTT: MQTTConfig{
			ClientID:    "eqcoach",
			StatusTopic: "eqcoach/status",
		},
	}
}

// Load reads the config from disk, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Load .env file if it exists
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("EQCOACH_LOG_LEVEL", c.LogLevel)
	c.AutoStart = getEnvBool("EQCOACH_AUTO_START", c.AutoStart)
	c.Server.BaseURL = getEnv("EQCOACH_SERVER_URL", c.Server.BaseURL)
	c.Server.TimeoutSeconds = getEnvInt("EQCOACH_TIMEOUT_SECONDS", c.Server.TimeoutSeconds)
	c.Capture.IntervalSeconds = getEnvInt("EQCOACH_CAPTURE_INTERVAL_SECONDS", c.Capture.IntervalSeconds)
	c.Capture.ImageWidth = getEnvInt("EQCOACH_CAPTURE_IMAGE_WIDTH", c.Capture.ImageWidth)
	c.Capture.ImageHeight = getEnvInt("EQCOACH_CAPTURE_IMAGE_HEIGHT", c.Capture.ImageHeight)
	c.Camera.Device = getEnv("EQCOACH_CAMERA_DEVICE", c.Camera.Device)
	c.Camera.SensorOrientation = getEnvInt("EQCOACH_CAMERA_SENSOR_ORIENTATION", c.Camera.SensorOrientation)
	c.Camera.DisplayRotation = getEnvInt("EQCOACH_CAMERA_DISPLAY_ROTATION", c.Camera.DisplayRotation)
	c.Audio.DeviceID = getEnv("EQCOACH_AUDIO_DEVICE", c.Audio.DeviceID)
	c.Audio.SampleRate = getEnvInt("EQCOACH_AUDIO_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = getEnvInt("EQCOACH_AUDIO_CHANNELS", c.Audio.Channels)
	c.Audio.BitDepth = getEnvInt("EQCOACH_AUDIO_BIT_DEPTH", c.Audio.BitDepth)
	c.Status.Addr = getEnv("EQCOACH_STATUS_ADDR", c.Status.Addr)
	c.MQTT.Broker = getEnv("EQCOACH_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("EQCOACH_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("EQCOACH_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("EQCOACH_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.StatusTopic = getEnv("EQCOACH_MQTT_STATUS_TOPIC", c.MQTT.StatusTopic)
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.Server.BaseURL == "":
		return fmt.Errorf("server.base_url is required")
	case c.Server.TimeoutSeconds <= 0:
		return fmt.Errorf("server.timeout_seconds must be positive, got %d", c.Server.TimeoutSeconds)
	case c.Capture.IntervalSeconds <= 0:
		return fmt.Errorf("capture.interval_seconds must be positive, got %d", c.Capture.IntervalSeconds)
	case c.Capture.ImageWidth <= 0 || c.Capture.ImageHeight <= 0:
		return fmt.Errorf("invalid capture size %dx%d", c.Capture.ImageWidth, c.Capture.ImageHeight)
	case c.Audio.SampleRate <= 0 || c.Audio.Channels <= 0:
		return fmt.Errorf("invalid audio format %d Hz x %d", c.Audio.SampleRate, c.Audio.Channels)
	case c.Audio.BitDepth != 16:
		return fmt.Errorf("audio.bit_depth must be 16, got %d", c.Audio.BitDepth)
	case c.Camera.DisplayRotation%90 != 0:
		return fmt.Errorf("camera.display_rotation must be a multiple of 90, got %d", c.Camera.DisplayRotation)
	}
	return nil
}

// AudioFormat returns the configured sampling contract.
func (c *Config) AudioFormat() model.AudioFormat {
	return model.AudioFormat{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		BitDepth:   c.Audio.BitDepth,
	}
}

// Interval is the polling period, which is also the audio window length.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Capture.IntervalSeconds) * time.Second
}

// Timeout is the per-phase network timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "eqcoach", "config.json")
}
