package capture

import (
	"fmt"

	"recyclescan/internal/config"
)

// NewStreamer builds a streamer for the configured source.
func NewStreamer(cfg *config.Config) (VideoStreamer, error) {
	switch cfg.ActiveSource {
	case config.SourceWebcam:
		return NewWebcamStreamer(cfg.Webcam.DeviceID, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight()), nil
	case config.SourceLocal:
		return NewFileStreamer(cfg.Local.Path, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight())
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrCameraUnavailable, cfg.ActiveSource)
	}
}
