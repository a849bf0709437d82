package synth

import (
	"image"
	"image/color"

	"github.com/suyashkumar/dicom/pkg/frame"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawLabel burns text into the centre of a uint16 frame so slices are easy
// to tell apart in a viewer. The text is scaled to about 80% of the frame
// width and drawn with value fg.
func drawLabel(nativeFrame *frame.NativeFrame[uint16], width, height int, text string, fg uint16) {
	face := basicfont.Face7x13
	baseTextWidth := font.MeasureString(face, text).Ceil()
	baseTextHeight := 13
	if baseTextWidth == 0 {
		return
	}

	textImg := image.NewRGBA(image.Rect(0, 0, baseTextWidth, baseTextHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	scaleFactor := float64(width) * 0.8 / float64(baseTextWidth)
	scaledWidth := int(float64(baseTextWidth) * scaleFactor)
	scaledHeight := int(float64(baseTextHeight) * scaleFactor)
	if scaledWidth <= 0 || scaledHeight <= 0 {
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	x0 := (width - scaledWidth) / 2
	y0 := (height - scaledHeight) / 2
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			_, _, _, a := scaled.At(sx, sy).RGBA()
			if a == 0 {
				continue
			}
			x, y := x0+sx, y0+sy
			if x >= 0 && x < width && y >= 0 && y < height {
				nativeFrame.RawData[y*width+x] = fg
			}
		}
	}
}
