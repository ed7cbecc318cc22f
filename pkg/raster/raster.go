// Package raster materializes gridded dataset files as in-memory arrays.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"path"
	"strings"

	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned for file types with no raster decoder.
var ErrUnsupportedFormat = errors.New("unsupported raster format")

// Raster is a band-major grid of samples: Data[b*Width*Height + y*Width + x].
type Raster struct {
	Name   string    `json:"name"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Bands  int       `json:"bands"`
	Data   []float64 `json:"-"`

	// Transform is set when the file carries GeoTIFF model tags.
	Transform *GeoTransform `json:"transform,omitempty"`
	// NoData is the fill value declared by the file, if any.
	NoData    *float64      `json:"nodata,omitempty"`
}

// New allocates a zeroed raster.
func New(name string, width, height, bands int) *Raster {
	return &Raster{
		Name:   name,
		Width:  width,
		Height: height,
		Bands:  bands,
		Data:   make([]float64, width*height*bands),
	}
}

// Shape returns (bands, height, width).
func (r *Raster) Shape() [3]int {
	return [3]int{r.Bands, r.Height, r.Width}
}

// At returns the sample of band b at (x, y).
func (r *Raster) At(b, x, y int) float64 {
	return r.Data[r.index(b, x, y)]
}

// Band returns the samples of band b in row-major order. The slice shares
// memory with the raster.
func (r *Raster) Band(b int) []float64 {
	n := r.Width * r.Height
	return r.Data[b*n : (b+1)*n]
}

func (r *Raster) set(b, x, y int, v float64) {
	r.Data[r.index(b, x, y)] = v
}

func (r *Raster) index(b, x, y int) int {
	return b*r.Width*r.Height + y*r.Width + x
}

// Coords returns the pixel-center coordinates of every column and row, or
// nils when the raster has no geotransform.
func (r *Raster) Coords() (xs, ys []float64) {
	if r.Transform == nil {
		return nil, nil
	}
	xs = make([]float64, r.Width)
	for i := range xs {
		xs[i] = r.Transform.X(i)
	}
	ys = make([]float64, r.Height)
	for i := range ys {
		ys[i] = r.Transform.Y(i)
	}
	return xs, ys
}

// IsNoData reports whether v is NaN or equals the declared fill value.
func (r *Raster) IsNoData(v float64) bool {
	return math.IsNaN(v) || (r.NoData != nil && v == *r.NoData)
}

// Decode parses one file by extension. Signed, floating point, planar and
// multi-band grayscale TIFFs go through the sample reader; the rest through
// image/tiff.
func Decode(name string, data []byte) (*Raster, error) {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".tif", ".tiff":
		d, err := parseIFD(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		var r *Raster
		if d.needsSampleReader() {
			r, err = decodeSamples(name, d)
		} else {
			var img image.Image
			img, err = tiff.Decode(bytes.NewReader(data))
			if err == nil {
				r = FromImage(name, img)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		r.Transform = d.transform()
		r.NoData = d.noData()
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// FromImage converts a decoded image. Gray and paletted images give one band
// (palette indices for the latter), everything else four RGBA bands.
func FromImage(name string, img image.Image) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		r := New(name, w, h, 1)
		for y := range h {
			for x := range w {
				r.set(0, x, y, float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
		return r
	case *image.Gray16:
		r := New(name, w, h, 1)
		for y := range h {
			for x := range w {
				r.set(0, x, y, float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
		return r
	case *image.Paletted:
		r := New(name, w, h, 1)
		for y := range h {
			for x := range w {
				r.set(0, x, y, float64(src.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y)))
			}
		}
		return r
	case *image.RGBA, *image.NRGBA:
		return rgba(name, img, 8)
	default:
		return rgba(name, img, 16)
	}
}

// rgba copies four bands, scaled to the given sample depth.
func rgba(name string, img image.Image, depth uint) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	r := New(name, w, h, 4)
	shift := 16 - depth
	for y := range h {
		for x := range w {
			cr, cg, cb, ca := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r.set(0, x, y, float64(cr>>shift))
			r.set(1, x, y, float64(cg>>shift))
			r.set(2, x, y, float64(cb>>shift))
			r.set(3, x, y, float64(ca>>shift))
		}
	}
	return r
}
