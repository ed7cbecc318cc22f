package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/tiff/lzw"
)

// ErrUnsupportedTIFF is returned for TIFF layouts the sample reader cannot decode.
var ErrUnsupportedTIFF = errors.New("unsupported tiff layout")

// TIFF and GeoTIFF tag numbers.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGDALNoData          = 42113
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3

	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// byte width of each TIFF field type
var fieldSize = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 16: 8,
}

// GeoTransform maps pixel indices to model coordinates for north-up grids.
// PixelHeight is negative when rows run southward.
type GeoTransform struct {
	OriginX     float64 `json:"origin_x"`
	OriginY     float64 `json:"origin_y"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// X returns the model x coordinate of the center of column col.
func (g GeoTransform) X(col int) float64 {
	return g.OriginX + (float64(col)+0.5)*g.PixelWidth
}

// Y returns the model y coordinate of the center of row row.
func (g GeoTransform) Y(row int) float64 {
	return g.OriginY + (float64(row)+0.5)*g.PixelHeight
}

type field struct {
	typ   uint16
	count uint32
	raw   []byte
}

// ifd is the first image file directory of a TIFF.
type ifd struct {
	order  binary.ByteOrder
	data   []byte
	fields map[uint16]field
}

func parseIFD(data []byte) (*ifd, error) {
	if len(data) < 8 {
		return nil, errors.New("tiff: short header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("tiff: bad byte order mark")
	}
	if magic := order.Uint16(data[2:4]); magic != 42 {
		if magic == 43 {
			return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupportedTIFF)
		}
		return nil, errors.New("tiff: bad magic number")
	}

	off := order.Uint32(data[4:8])
	if uint64(off)+2 > uint64(len(data)) {
		return nil, errors.New("tiff: directory offset out of range")
	}
	n := uint32(order.Uint16(data[off:]))
	start := off + 2
	if uint64(start)+uint64(n)*12 > uint64(len(data)) {
		return nil, errors.New("tiff: directory out of range")
	}

	d := &ifd{order: order, data: data, fields: make(map[uint16]field, n)}
	for i := range n {
		e := data[start+i*12 : start+i*12+12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := order.Uint32(e[4:8])
		size, ok := fieldSize[typ]
		if !ok {
			continue
		}
		length := uint64(size) * uint64(count)
		raw := e[8:12]
		if length > 4 {
			p := uint64(order.Uint32(e[8:12]))
			if p+length > uint64(len(data)) {
				return nil, fmt.Errorf("tiff: tag %d value out of range", tag)
			}
			raw = data[p : p+length]
		} else {
			raw = raw[:length]
		}
		d.fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return d, nil
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints reads an integer-typed field.
func (d *ifd) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, f.count)
	for i := range f.count {
		switch f.typ {
		case 1, 7:
			out = append(out, uint64(f.raw[i]))
		case 3:
			out = append(out, uint64(d.order.Uint16(f.raw[i*2:])))
		case 4:
			out = append(out, uint64(d.order.Uint32(f.raw[i*4:])))
		case 16:
			out = append(out, d.order.Uint64(f.raw[i*8:]))
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) value(tag uint16, def uint64) uint64 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

// floats reads a DOUBLE or FLOAT field.
func (d *ifd) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, 0, f.count)
	for i := range f.count {
		switch f.typ {
		case 11:
			out = append(out, float64(math.Float32frombits(d.order.Uint32(f.raw[i*4:]))))
		case 12:
			out = append(out, math.Float64frombits(d.order.Uint64(f.raw[i*8:])))
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) ascii(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.typ != 2 {
		return ""
	}
	return strings.TrimRight(string(f.raw), "\x00")
}

// transform derives the geotransform from ModelTransformation or from
// ModelPixelScale with ModelTiepoint. Rotation terms are ignored.
func (d *ifd) transform() *GeoTransform {
	if m := d.floats(tagModelTransformation); len(m) >= 16 {
		return &GeoTransform{OriginX: m[3], OriginY: m[7], PixelWidth: m[0], PixelHeight: m[5]}
	}
	scale := d.floats(tagModelPixelScale)
	tie := d.floats(tagModelTiepoint)
	if len(scale) < 2 || len(tie) < 6 {
		return nil
	}
	return &GeoTransform{
		OriginX:     tie[3] - tie[0]*scale[0],
		OriginY:     tie[4] + tie[1]*scale[1],
		PixelWidth:  scale[0],
		PixelHeight: -scale[1],
	}
}

func (d *ifd) noData() *float64 {
	s := strings.TrimSpace(d.ascii(tagGDALNoData))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// needsSampleReader reports whether the image falls outside what the
// image/tiff decoder accepts: signed or float samples, 32/64-bit depths,
// planar layout or multi-band grayscale.
func (d *ifd) needsSampleReader() bool {
	bits := d.value(tagBitsPerSample, 1)
	spp := d.value(tagSamplesPerPixel, 1)
	photometric := d.value(tagPhotometric, 1)
	return d.value(tagSampleFormat, sampleUint) != sampleUint ||
		bits > 16 ||
		d.value(tagPlanarConfig, 1) == 2 ||
		(photometric <= 1 && spp > 1)
}

type chunk struct {
	x0, y0 int
	w      int // encoded width
	rows   int // rows present in the encoded data
	band   int // first band held by the chunk
}

// decodeSamples reads every band of the image as float64 samples.
func decodeSamples(name string, d *ifd) (*Raster, error) {
	width := int(d.value(tagImageWidth, 0))
	height := int(d.value(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, errors.New("tiff: missing image dimensions")
	}
	spp := int(d.value(tagSamplesPerPixel, 1))
	bitsList := d.uints(tagBitsPerSample)
	bits := 1
	if len(bitsList) > 0 {
		bits = int(bitsList[0])
	}
	for _, b := range bitsList {
		if int(b) != bits {
			return nil, fmt.Errorf("%w: mixed bits per sample", ErrUnsupportedTIFF)
		}
	}
	format := int(d.value(tagSampleFormat, sampleUint))
	if err := checkSampleType(format, bits); err != nil {
		return nil, err
	}
	compression := int(d.value(tagCompression, compressionNone))
	predictor := int(d.value(tagPredictor, predictorNone))
	planar := d.value(tagPlanarConfig, 1) == 2

	chunks, offsets, counts, err := layout(d, width, height, spp, planar)
	if err != nil {
		return nil, err
	}

	r := New(name, width, height, spp)
	bps := bits / 8
	perPixel := spp
	if planar {
		perPixel = 1
	}
	for i, c := range chunks {
		start, n := offsets[i], counts[i]
		if start+n > uint64(len(d.data)) {
			return nil, fmt.Errorf("tiff: chunk %d out of range", i)
		}
		buf, err := decompress(compression, d.data[start:start+n])
		if err != nil {
			return nil, err
		}
		if compression == compressionNone && predictor != predictorNone {
			// predictors are undone in place
			buf = bytes.Clone(buf)
		}
		rowBytes := c.w * perPixel * bps
		if len(buf) < rowBytes*c.rows {
			return nil, fmt.Errorf("tiff: chunk %d is short", i)
		}
		order := d.order
		for y := range c.rows {
			row := buf[y*rowBytes : (y+1)*rowBytes]
			switch predictor {
			case predictorNone:
			case predictorHorizontal:
				undoHorizontal(row, order, bps, perPixel)
			case predictorFloat:
				undoFloat(row, bps, perPixel)
				order = binary.BigEndian
			default:
				return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedTIFF, predictor)
			}
			for x := range c.w {
				px, py := c.x0+x, c.y0+y
				if px >= width || py >= height {
					continue
				}
				for s := range perPixel {
					off := (x*perPixel + s) * bps
					r.set(c.band+s, px, py, sample(row[off:off+bps], order, format))
				}
			}
		}
	}
	return r, nil
}

func checkSampleType(format, bits int) error {
	switch format {
	case sampleUint, sampleInt:
		if bits == 8 || bits == 16 || bits == 32 || bits == 64 {
			return nil
		}
	case sampleFloat:
		if bits == 32 || bits == 64 {
			return nil
		}
	}
	return fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupportedTIFF, format, bits)
}

// layout lists the strips or tiles of the image with their byte ranges.
func layout(d *ifd, width, height, spp int, planar bool) ([]chunk, []uint64, []uint64, error) {
	var chunks []chunk
	var offsets, counts []uint64
	planes := 1
	if planar {
		planes = spp
	}

	if d.has(tagTileWidth) {
		tw := int(d.value(tagTileWidth, 0))
		th := int(d.value(tagTileLength, 0))
		if tw <= 0 || th <= 0 {
			return nil, nil, nil, errors.New("tiff: bad tile size")
		}
		offsets, counts = d.uints(tagTileOffsets), d.uints(tagTileByteCounts)
		across, down := (width+tw-1)/tw, (height+th-1)/th
		for p := range planes {
			for ty := range down {
				for tx := range across {
					chunks = append(chunks, chunk{x0: tx * tw, y0: ty * th, w: tw, rows: th, band: p})
				}
			}
		}
	} else {
		rps := int(d.value(tagRowsPerStrip, uint64(height)))
		if rps <= 0 || rps > height {
			rps = height
		}
		offsets, counts = d.uints(tagStripOffsets), d.uints(tagStripByteCounts)
		for p := range planes {
			for y := 0; y < height; y += rps {
				chunks = append(chunks, chunk{y0: y, w: width, rows: min(rps, height-y), band: p})
			}
		}
	}
	if len(offsets) < len(chunks) || len(counts) < len(chunks) {
		return nil, nil, nil, fmt.Errorf("tiff: %d chunks but %d offsets", len(chunks), len(offsets))
	}
	return chunks, offsets, counts, nil
}

func decompress(compression int, data []byte) ([]byte, error) {
	switch compression {
	case compressionNone:
		return data, nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	case compressionDeflate, compressionDeflateOld:
		rc, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("tiff: deflate: %w", err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedTIFF, compression)
	}
}

// undoHorizontal reverses integer horizontal differencing in place.
func undoHorizontal(row []byte, order binary.ByteOrder, bps, stride int) {
	n := len(row) / bps
	for i := stride; i < n; i++ {
		cur, prev := row[i*bps:(i+1)*bps], row[(i-stride)*bps:(i-stride+1)*bps]
		switch bps {
		case 1:
			cur[0] += prev[0]
		case 2:
			order.PutUint16(cur, order.Uint16(cur)+order.Uint16(prev))
		case 4:
			order.PutUint32(cur, order.Uint32(cur)+order.Uint32(prev))
		case 8:
			order.PutUint64(cur, order.Uint64(cur)+order.Uint64(prev))
		}
	}
}

// undoFloat reverses the floating point predictor in place, leaving each
// sample big-endian.
func undoFloat(row []byte, bps, stride int) {
	for i := stride; i < len(row); i++ {
		row[i] += row[i-stride]
	}
	tmp := make([]byte, len(row))
	copy(tmp, row)
	wc := len(row) / bps
	for k := range wc {
		for j := range bps {
			row[k*bps+j] = tmp[j*wc+k]
		}
	}
}

func sample(b []byte, order binary.ByteOrder, format int) float64 {
	switch format {
	case sampleFloat:
		if len(b) == 4 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}
		return math.Float64frombits(order.Uint64(b))
	case sampleInt:
		switch len(b) {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(order.Uint16(b)))
		case 4:
			return float64(int32(order.Uint32(b)))
		default:
			return float64(int64(order.Uint64(b)))
		}
	default:
		switch len(b) {
		case 1:
			return float64(b[0])
		case 2:
			return float64(order.Uint16(b))
		case 4:
			return float64(order.Uint32(b))
		default:
			return float64(order.Uint64(b))
		}
	}
}
