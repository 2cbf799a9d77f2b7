package scanner

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"recyclescan/internal/models"
)

func TestAnnotate_DrawsBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	annotate(img, []models.Detection{
		{Label: "bottle", Confidence: 0.8, Box: models.Box{X: 20, Y: 30, Width: 40, Height: 40}},
	})

	r, g, b, _ := img.At(25, 30).RGBA() // top edge of the box
	assert.Zero(t, r)
	assert.NotZero(t, g)
	assert.Zero(t, b)
}

func TestAnnotate_BoxOutsideBoundsIsClamped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))

	assert.NotPanics(t, func() {
		annotate(img, []models.Detection{
			{Label: "cup", Confidence: 0.9, Box: models.Box{X: -10, Y: -10, Width: 100, Height: 100}},
			{Label: "cup", Confidence: 0.9, Box: models.Box{X: 0, Y: 0, Width: 5, Height: 5}},
		})
	})
}

func TestDrawBox_StaysWithinDetectionExtent(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	drawBox(img, image.Rect(5, 5, 25, 25), overlayColor)

	// Edges land on the last row/column inside the box.
	_, g, _, _ := img.At(24, 10).RGBA()
	assert.NotZero(t, g, "right edge")
	_, g, _, _ = img.At(10, 24).RGBA()
	assert.NotZero(t, g, "bottom edge")

	// Nothing one pixel past the detection's extent.
	r, g, b, _ := img.At(25, 10).RGBA()
	assert.Zero(t, r+g+b, "column past the right edge")
	r, g, b, _ = img.At(10, 25).RGBA()
	assert.Zero(t, r+g+b, "row past the bottom edge")
}

func TestAnnotate_NoDetectionsLeavesFrameUntouched(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	annotate(img, nil)

	for i, p := range img.Pix {
		if p != 0 {
			t.Fatalf("pixel byte %d modified", i)
		}
	}
}
