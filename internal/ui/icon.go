package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// iconBytes is the tray icon, rendered once at startup. A simple
// filmstrip glyph keeps the binary free of embedded assets.
var iconBytes = renderIcon()

func renderIcon() []byte {
	const size = 22
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	frame := color.RGBA{R: 235, G: 235, B: 235, A: 255}
	hole := color.RGBA{R: 30, G: 30, B: 30, A: 255}

	for y := 3; y < size-3; y++ {
		for x := 1; x < size-1; x++ {
			img.SetRGBA(x, y, frame)
		}
	}
	// Sprocket holes along the top and bottom edges.
	for x := 3; x < size-3; x += 5 {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 3; dx++ {
				img.SetRGBA(x+dx, 4+dy, hole)
				img.SetRGBA(x+dx, size-6+dy, hole)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
