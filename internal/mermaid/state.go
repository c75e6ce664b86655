// Package mermaid reproduces the mermaid.live / mermaid.ink URL scheme: a
// JSON editor state, deflated and URL-safe base64 encoded.
package mermaid

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultTheme is the theme requested when none is given.
const DefaultTheme = "dark"

// Config is the mermaid configuration embedded in the editor state.
type Config struct {
	Theme string `json:"theme"`
}

// State is the record the live editor loads. Field order is the JSON key order.
type State struct {
	Code          string `json:"code"`
	Mermaid       Config `json:"mermaid"`
	UpdateEditor  bool   `json:"updateEditor"`
	AutoSync      bool   `json:"autoSync"`
	UpdateDiagram bool   `json:"updateDiagram"`
}

// BuildState returns a fresh state for source. The editor flags are always on
// so the live editor loads the code and re-renders it.
func BuildState(source, theme string) State {
	if theme == "" {
		theme = DefaultTheme
	}
	return State{
		Code:          source,
		Mermaid:       Config{Theme: theme},
		UpdateEditor:  true,
		AutoSync:      true,
		UpdateDiagram: true,
	}
}

// SerializeState encodes state as compact JSON. Output is byte-for-byte
// reproducible and '<', '>' and '&' are written literally. U+2028 and U+2029
// are still escaped, which decodes to the same code. Invalid UTF-8 in the code
// is replaced with U+FFFD, so such code does not round-trip through a link.
func SerializeState(state State) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(state); err != nil {
		return "", fmt.Errorf("failed to serialize mermaid state: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// DeserializeState is the inverse of SerializeState.
func DeserializeState(data string) (State, error) {
	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return State{}, fmt.Errorf("failed to deserialize mermaid state: %w", err)
	}
	return state, nil
}
