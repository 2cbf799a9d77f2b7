package config

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"
)

type SourceType string

const (
	SourceWebcam SourceType = "Web-Camera"
	SourceLocal  SourceType = "Local"

	DefaultConfigPath string = "config.json"
)

var SourcesList = [...]string{
	string(SourceWebcam),
	string(SourceLocal),
}

type WebcamConfig struct {
	DeviceID string `json:"device_id"`
}

type LocalConfig struct {
	Path string `json:"path"`
}

type DetectorConfig struct {
	Host string `json:"host"`
}

type ScanConfig struct {
	PollIntervalMS      uint    `json:"poll_interval_ms"`
	ConfidenceThreshold float32 `json:"confidence_threshold"`
}

type Config struct {
	mu sync.RWMutex

	ActiveSource SourceType `json:"active_source"`
	TargetFPS    uint       `json:"target_fps"`
	ScaledWidth  int        `json:"scaled_width"`
	ScaledHeight int        `json:"scaled_height"`

	Webcam   WebcamConfig   `json:"webcam"`
	Local    LocalConfig    `json:"local"`
	Detector DetectorConfig `json:"detector"`
	Scan     ScanConfig     `json:"scan"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Scan.PollIntervalMS) * time.Millisecond
}

func (c *Config) Threshold() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Scan.ConfidenceThreshold
}

func (c *Config) SetThreshold(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Scan.ConfidenceThreshold = v
}

func (c *Config) DetectorHost() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Detector.Host
}

func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	c.mu.RLock()
	defer c.mu.RUnlock()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (c *Config) SaveByDefault() {
	_ = c.Save(DefaultConfigPath)
}

// LoadConfigFile reads the JSON config at path, falling back to defaults for a
// missing or unreadable file. Environment variables override the file values.
func LoadConfigFile(path string) *Config {
	cfg := NewDefaultConfig()

	if f, err := os.Open(path); err == nil {
		dec := json.NewDecoder(f)
		_ = dec.Decode(cfg)
		f.Close()
	}

	cfg.applyEnv()

	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DETECTOR_HOST"); v != "" {
		c.Detector.Host = v
	}
	if v := os.Getenv("CAMERA_DEVICE"); v != "" {
		c.Webcam.DeviceID = v
	}
	if v, err := strconv.ParseUint(os.Getenv("POLL_INTERVAL_MS"), 10, 32); err == nil && v > 0 {
		c.Scan.PollIntervalMS = uint(v)
	}
	if v, err := strconv.ParseFloat(os.Getenv("CONFIDENCE_THRESHOLD"), 32); err == nil && v > 0 && v < 1 {
		c.Scan.ConfidenceThreshold = float32(v)
	}
}

func NewDefaultConfig() *Config {
	return &Config{
		ActiveSource: SourceWebcam,
		TargetFPS:    24,
		ScaledWidth:  640,
		ScaledHeight: 480,
		Webcam:       WebcamConfig{DeviceID: "/dev/video0"},
		Local:        LocalConfig{Path: ""},
		Detector:     DetectorConfig{Host: "localhost:8080"},
		Scan: ScanConfig{
			PollIntervalMS:      500,
			ConfidenceThreshold: 0.7,
		},
	}
}
