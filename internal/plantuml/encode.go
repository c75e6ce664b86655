package plantuml

import (
	"fmt"
	"strings"

	"diagram-go/internal/codec"
)

// PlantUML's 64-symbol alphabet: digits, upper case, lower case, '-' and '_'.
var mapper = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_")

var unmapper = func() [256]int8 {
	var m [256]int8
	for i := range m {
		m[i] = -1
	}
	for i, c := range mapper {
		m[c] = int8(i)
	}
	return m
}()

// Encode compresses source with raw deflate and maps the result through
// PlantUML's alphabet. The same source always yields the same payload.
func Encode(source string) (string, error) {
	compressed, err := codec.NewRaw().Compress(source)
	if err != nil {
		return "", fmt.Errorf("failed to compress plantuml source: %w", err)
	}
	return encode64(compressed), nil
}

// Decode reverses Encode.
func Decode(payload string) (string, error) {
	data, err := decode64(payload)
	if err != nil {
		return "", err
	}
	source, err := codec.NewRaw().Decompress(data)
	if err != nil {
		return "", fmt.Errorf("failed to decompress plantuml payload: %w", err)
	}
	return source, nil
}

// encode64 packs every 3 bytes into 4 symbols like base64 does. A short final
// group is zero-filled rather than padded with '='.
func encode64(data []byte) string {
	var r strings.Builder
	r.Grow((len(data) + 2) / 3 * 4)
	lenData := len(data)
	for i := 0; i < lenData; i += 3 {
		if i+2 == lenData {
			append3bytes(&r, data[i], data[i+1], 0)
		} else if i+1 == lenData {
			append3bytes(&r, data[i], 0, 0)
		} else {
			append3bytes(&r, data[i], data[i+1], data[i+2])
		}
	}
	return r.String()
}

func append3bytes(r *strings.Builder, b1, b2, b3 byte) {
	c1 := b1 >> 2
	c2 := ((b1 & 0x3) << 4) | (b2 >> 4)
	c3 := ((b2 & 0xF) << 2) | (b3 >> 6)
	c4 := b3 & 0x3F
	r.WriteByte(mapper[c1&0x3F])
	r.WriteByte(mapper[c2&0x3F])
	r.WriteByte(mapper[c3&0x3F])
	r.WriteByte(mapper[c4&0x3F])
}

func decode64(payload string) ([]byte, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("invalid plantuml payload length %d", len(payload))
	}
	out := make([]byte, 0, len(payload)/4*3)
	for i := 0; i < len(payload); i += 4 {
		var c [4]byte
		for j := 0; j < 4; j++ {
			v := unmapper[payload[i+j]]
			if v < 0 {
				return nil, fmt.Errorf("invalid plantuml payload symbol %q at %d", payload[i+j], i+j)
			}
			c[j] = byte(v)
		}
		out = append(out,
			c[0]<<2|c[1]>>4,
			(c[1]&0xF)<<4|c[2]>>2,
			(c[2]&0x3)<<6|c[3],
		)
	}
	return out, nil
}
