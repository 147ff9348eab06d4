// Package compress provides the at-rest value codec for cache records.
// Small and incompressible values are stored raw behind a one-byte frame
// marker, so decoding is always unambiguous.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	frameRaw  = 0x00
	frameZstd = 0x01

	// Values below this size are never worth a zstd frame.
	minCompressSize = 128
)

// Codec encodes and decodes record values. Level 0 disables compression
// entirely; levels 1..3 map to zstd fastest/default/better.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

func New(level int) (*Codec, error) {
	if level <= 0 {
		return &Codec{enabled: false}, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 2:
		encoderLevel = zstd.SpeedDefault
	default:
		encoderLevel = zstd.SpeedBetterCompression
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Codec{encoder: encoder, decoder: decoder, enabled: true}, nil
}

// Encode frames data, compressing when it pays off.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if !c.enabled || len(data) < minCompressSize {
		return frame(frameRaw, data), nil
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return frame(frameRaw, data), nil
	}
	return frame(frameZstd, compressed), nil
}

// Decode reverses Encode. Raw frames decode at any level; a zstd frame
// hitting a disabled codec is an error.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	switch data[0] {
	case frameRaw:
		out := make([]byte, len(data)-1)
		copy(out, data[1:])
		return out, nil
	case frameZstd:
		if c.decoder == nil {
			return nil, errors.New("zstd frame but compression is disabled")
		}
		out, err := c.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing value: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown frame marker 0x%02x", data[0])
	}
}

func (c *Codec) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

func frame(marker byte, data []byte) []byte {
	out := make([]byte, len(data)+1)
	out[0] = marker
	copy(out[1:], data)
	return out
}
