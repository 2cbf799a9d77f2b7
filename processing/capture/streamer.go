package capture

import (
	"errors"
	"image"
)

// ErrCameraUnavailable reports that a video source could not be acquired.
// Callers may retry after the user fixes the device or permissions.
var ErrCameraUnavailable = errors.New("camera unavailable")

// VideoStreamer is an exclusive handle on one video source. Stop is idempotent
// and must release the underlying device; FrameChan is closed when the source
// ends or fails.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}
