package scanner

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"recyclescan/internal/models"
)

const boxThickness = 3

var overlayColor = color.RGBA{G: 255, A: 255}

// annotate draws every detection onto the frame in place: a box around the
// object plus a "label NN%" caption.
func annotate(img *image.RGBA, detections []models.Detection) {
	for _, d := range detections {
		drawBox(img, d.Box.Rect(), overlayColor)
		drawCaption(img, d.Caption(), d.Box, overlayColor)
	}
}

func drawBox(img *image.RGBA, r image.Rectangle, col color.Color) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	// r.Max is exclusive; the box edges sit on [Min, Max-1].
	for t := 0; t < boxThickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setPixel(x, r.Min.Y+t)
			setPixel(x, r.Max.Y-1-t)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setPixel(r.Min.X+t, y)
			setPixel(r.Max.X-1-t, y)
		}
	}
}

func drawCaption(img *image.RGBA, text string, box models.Box, col color.Color) {
	face := basicfont.Face7x13

	// Above the box when there is room, inside it otherwise.
	y := box.Y - 4
	if y < face.Height {
		y = box.Y + face.Height + boxThickness
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(box.X, y),
	}
	d.DrawString(text)
}
