package bitmap

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/makeworld-the-better-one/dither/v2"
	"golang.org/x/image/draw"
)

// LoadRows reads an image file and renders it into boolean pixel rows
// (true = black) at the printer's width.
func LoadRows(path string) ([][]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode image: %w", err)
	}
	return RenderRows(img), nil
}

// RenderRows turns an arbitrary image into monochrome pixel rows at the
// printer's fixed width: scale, grayscale with gamma correction, then
// Floyd-Steinberg dither down to black and white.
func RenderRows(i image.Image) [][]bool {
	scaledHeight := i.Bounds().Dy() * WidthPixels / i.Bounds().Dx()
	scaledBounds := image.Rect(0, 0, WidthPixels, scaledHeight)
	scaledImage := image.NewRGBA(scaledBounds)
	draw.CatmullRom.Scale(scaledImage, scaledBounds, i, i.Bounds(), draw.Over, nil)

	// Thermal output comes out darker than the screen image; a 0.5 gamma
	// is empirically close on this device.
	monochromeImage := image.NewGray16(scaledBounds)
	for y := scaledBounds.Min.Y; y < scaledBounds.Max.Y; y++ {
		for x := scaledBounds.Min.X; x < scaledBounds.Max.X; x++ {
			grayColor := color.Gray16Model.Convert(scaledImage.At(x, y)).(color.Gray16)
			grayValue := float64(grayColor.Y) / float64(0xFFFF)
			corrected := math.Pow(grayValue, 0.5)
			monochromeImage.Set(x, y, color.Gray16{Y: uint16(corrected * float64(0xFFFF))})
		}
	}

	palette := []color.Color{color.Black, color.White}
	ditherer := dither.NewDitherer(palette)
	ditherer.Matrix = dither.FloydSteinberg
	ditherer.Serpentine = true
	ditheredImage := ditherer.DitherPaletted(monochromeImage)

	blackIndex := uint8(ditheredImage.Palette.Index(color.Black))

	rows := make([][]bool, scaledHeight)
	for y := range rows {
		row := make([]bool, WidthPixels)
		for x := range row {
			row[x] = ditheredImage.ColorIndexAt(x, y) == blackIndex
		}
		rows[y] = row
	}
	return rows
}
