// Package media rebuilds a playable video from liveness frames so it can be
// attached to the case record.
package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNoFrames is returned when none of the frames could be decoded.
var ErrNoFrames = errors.New("no decodable frames")

const (
	DefaultFPS     = 8
	DefaultQuality = 85

	// VideoMimeType is the content type of encoded videos.
	VideoMimeType = "video/x-msvideo"
)

// Encoder turns still frames into a Motion-JPEG AVI.
type Encoder struct {
	fps     int
	quality int
	logger  *slog.Logger
}

// NewEncoder returns an Encoder. Non-positive fps or quality select the
// defaults.
func NewEncoder(fps, quality int) *Encoder {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{
		fps:     fps,
		quality: quality,
		logger:  slog.Default().With("component", "video-encoder"),
	}
}

// Encode decodes every frame, skipping the ones that fail, scales them to
// the size of the first decodable frame and writes them out in order.
func (e *Encoder) Encode(frames [][]byte) ([]byte, error) {
	var (
		size   image.Rectangle
		chunks [][]byte
	)
	for i, raw := range frames {
		img, format, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			e.logger.Debug("skipping undecodable frame", "frame", i, "error", err)
			continue
		}
		if len(chunks) == 0 {
			size = image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy())
		}
		img = fit(img, size)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
			return nil, fmt.Errorf("encoding frame %d (%s): %w", i, format, err)
		}
		chunks = append(chunks, buf.Bytes())
	}
	if len(chunks) == 0 {
		return nil, ErrNoFrames
	}
	return writeAVI(chunks, size.Dx(), size.Dy(), e.fps), nil
}

func fit(img image.Image, size image.Rectangle) image.Image {
	b := img.Bounds()
	if b.Dx() == size.Dx() && b.Dy() == size.Dy() {
		return img
	}
	dst := image.NewRGBA(size)
	xdraw.ApproxBiLinear.Scale(dst, size, img, b, xdraw.Src, nil)
	return dst
}

const (
	avifHasIndex  = 0x10
	aviifKeyFrame = 0x10
)

// writeAVI lays out a RIFF AVI with one MJPG video stream and an idx1
// index. Every frame is a key frame.
func writeAVI(frames [][]byte, width, height, fps int) []byte {
	var largest int
	for _, f := range frames {
		largest = max(largest, len(f))
	}
	n := uint32(len(frames))

	avih := le(
		uint32(time.Second/time.Microsecond)/uint32(fps),
		uint32(largest*fps),
		uint32(0),
		uint32(avifHasIndex),
		n,
		uint32(0),
		uint32(1),
		uint32(largest),
		uint32(width),
		uint32(height),
		[4]uint32{},
	)
	strh := le(
		[4]byte{'v', 'i', 'd', 's'},
		[4]byte{'M', 'J', 'P', 'G'},
		uint32(0),
		uint16(0), uint16(0),
		uint32(0),
		uint32(1),
		uint32(fps),
		uint32(0),
		n,
		uint32(largest),
		^uint32(0),
		uint32(0),
		[4]int16{0, 0, int16(width), int16(height)},
	)
	strf := le(
		uint32(40),
		int32(width),
		int32(height),
		uint16(1),
		uint16(24),
		[4]byte{'M', 'J', 'P', 'G'},
		uint32(width*height*3),
		int32(0), int32(0),
		uint32(0), uint32(0),
	)
	hdrl := list("hdrl",
		chunk("avih", avih),
		list("strl", chunk("strh", strh), chunk("strf", strf)),
	)

	var movi, idx bytes.Buffer
	offset := uint32(4)
	for _, f := range frames {
		c := chunk("00dc", f)
		movi.Write(c)
		idx.Write(le([4]byte{'0', '0', 'd', 'c'}, uint32(aviifKeyFrame), offset, uint32(len(f))))
		offset += uint32(len(c))
	}

	return riff("AVI ", hdrl, list("movi", movi.Bytes()), chunk("idx1", idx.Bytes()))
}

func le(fields ...any) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		// bytes.Buffer writes never fail.
		_ = binary.Write(&buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

// chunk frames data as a RIFF chunk, padded to an even length.
func chunk(fourcc string, data []byte) []byte {
	out := make([]byte, 0, 8+len(data)+1)
	out = append(out, fourcc...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	if len(data)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func list(kind string, children ...[]byte) []byte {
	return chunk("LIST", concat(kind, children))
}

func riff(kind string, children ...[]byte) []byte {
	return chunk("RIFF", concat(kind, children))
}

func concat(kind string, children [][]byte) []byte {
	body := []byte(kind)
	for _, c := range children {
		body = append(body, c...)
	}
	return body
}
