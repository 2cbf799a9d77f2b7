package models

import (
	"fmt"
	"image"
	"time"
)

// Box is a detection bounding box in pixel coordinates of the analyzed frame.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Detection is a single model output for one frame. Ephemeral, never persisted.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Caption is the overlay text for a detection, e.g. "bottle 75%".
func (d Detection) Caption() string {
	return fmt.Sprintf("%s %d%%", d.Label, int(d.Confidence*100+0.5))
}

// ScanResult is recorded when a qualifying detection ends a scan session.
type ScanResult struct {
	Label     string
	MatchedAt time.Time

	// Snapshot is a thumbnail of the annotated frame that produced the match.
	Snapshot image.Image
}
