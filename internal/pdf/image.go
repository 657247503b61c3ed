package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/jung-kurt/gofpdf"
)

const rasterName = "capture"

// RenderImage places a PNG screenshot on a single page sized to its pixels.
func RenderImage(raster []byte) ([]byte, error) {
	if len(raster) == 0 {
		return nil, errors.New("render image: empty raster")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("render image: decode png header: %w", err)
	}
	w, h := float64(cfg.Width), float64(cfg.Height)

	data, err := embedImage(w, h, raster)
	if err == nil {
		return data, nil
	}
	// gofpdf rejects 16-bit and interlaced PNGs; flatten to 8-bit NRGBA and retry.
	flat, ferr := flattenPNG(raster)
	if ferr != nil {
		return nil, fmt.Errorf("render image: %w", errors.Join(err, ferr))
	}
	return embedImage(w, h, flat)
}

func embedImage(w, h float64, raster []byte) ([]byte, error) {
	doc := newDocument(w, h)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader(rasterName, opts, bytes.NewReader(raster))
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("register image: %w", err)
	}
	doc.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
	doc.ImageOptions(rasterName, 0, 0, w, h, false, opts, 0, "")
	return output(doc)
}

func flattenPNG(raster []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	bounds := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Src)
	var buf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
