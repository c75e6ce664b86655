package mermaid

import (
	"encoding/base64"
	"fmt"
	"strings"

	"diagram-go/internal/codec"
)

// Serde turns a serialized state into the text that follows the "<name>:"
// prefix in a mermaid URL, and back.
type Serde interface {
	Name() string
	Serialize(text string) (string, error)
	Deserialize(payload string) (string, error)
}

// PakoSerde deflates with zlib framing, as pako does, then applies URL-safe
// base64 without padding.
type PakoSerde struct{}

// Base64Serde only applies URL-safe base64 without padding.
type Base64Serde struct{}

var serdes = map[string]Serde{
	PakoSerde{}.Name():   PakoSerde{},
	Base64Serde{}.Name(): Base64Serde{},
}

func (PakoSerde) Name() string { return "pako" }

func (PakoSerde) Serialize(text string) (string, error) {
	compressed, err := codec.NewZlib().Compress(text)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(compressed), nil
}

func (PakoSerde) Deserialize(payload string) (string, error) {
	compressed, err := decodeBase64(payload)
	if err != nil {
		return "", err
	}
	return codec.NewZlib().Decompress(compressed)
}

func (Base64Serde) Name() string { return "base64" }

func (Base64Serde) Serialize(text string) (string, error) {
	return base64.RawURLEncoding.EncodeToString([]byte(text)), nil
}

func (Base64Serde) Deserialize(payload string) (string, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodeBase64 accepts both alphabets, with or without padding, because
// links pasted from elsewhere are not always URL-safe.
func decodeBase64(payload string) ([]byte, error) {
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(strings.TrimRight(payload, "="))
	data, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, nil
}

// EncodePayload serializes state with serde and prefixes the serde name,
// e.g. "pako:eNqrVk...".
func EncodePayload(state State, serde Serde) (string, error) {
	text, err := SerializeState(state)
	if err != nil {
		return "", err
	}
	encoded, err := serde.Serialize(text)
	if err != nil {
		return "", fmt.Errorf("failed to encode mermaid state with %s: %w", serde.Name(), err)
	}
	return serde.Name() + ":" + encoded, nil
}

// DecodePayload reverses EncodePayload. Payloads without a known prefix are
// treated as plain base64, which is what the live editor does too.
func DecodePayload(payload string) (State, error) {
	var serde Serde = Base64Serde{}
	if name, rest, ok := strings.Cut(payload, ":"); ok {
		known, found := serdes[name]
		if !found {
			return State{}, fmt.Errorf("unknown mermaid serde %q", name)
		}
		serde, payload = known, rest
	}

	text, err := serde.Deserialize(payload)
	if err != nil {
		return State{}, fmt.Errorf("failed to decode mermaid payload with %s: %w", serde.Name(), err)
	}
	return DeserializeState(text)
}
