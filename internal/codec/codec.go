// Package codec implements the deflate framings the remote diagram services
// decompress with. Both codecs use no preset dictionary and the default
// 32 KiB window, which is what PlantUML's server and pako expect.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Codec is an exact inverse pair of compress and decompress.
type Codec interface {
	Compress(text string) ([]byte, error)
	Decompress(data []byte) (string, error)
}

// Raw is headerless deflate (RFC 1951), the framing PlantUML URLs use.
type Raw struct {
	Level int
}

// Zlib is zlib-framed deflate (RFC 1950), the framing pako's deflate and
// inflate produce and read.
type Zlib struct {
	Level int
}

// NewRaw returns a raw deflate codec at best compression.
func NewRaw() Raw { return Raw{Level: flate.BestCompression} }

// NewZlib returns a zlib codec at level 9, matching the mermaid live editor.
func NewZlib() Zlib { return Zlib{Level: zlib.BestCompression} }

func (c Raw) Compress(text string) ([]byte, error) {
	var b bytes.Buffer
	zw, err := flate.NewWriter(&b, c.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	if _, err := io.WriteString(zw, text); err != nil {
		return nil, fmt.Errorf("failed to deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush deflate writer: %w", err)
	}
	return b.Bytes(), nil
}

func (c Raw) Decompress(data []byte) (string, error) {
	zr := flate.NewReader(bytes.NewReader(data))
	defer zr.Close()

	var b bytes.Buffer
	if _, err := io.Copy(&b, zr); err != nil {
		return "", fmt.Errorf("failed to inflate: %w", err)
	}
	return b.String(), nil
}

func (c Zlib) Compress(text string) ([]byte, error) {
	var b bytes.Buffer
	zw, err := zlib.NewWriterLevel(&b, c.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := io.WriteString(zw, text); err != nil {
		return nil, fmt.Errorf("failed to deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zlib writer: %w", err)
	}
	return b.Bytes(), nil
}

func (c Zlib) Decompress(data []byte) (string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to read zlib header: %w", err)
	}
	defer zr.Close()

	var b bytes.Buffer
	if _, err := io.Copy(&b, zr); err != nil {
		return "", fmt.Errorf("failed to inflate: %w", err)
	}
	return b.String(), nil
}
