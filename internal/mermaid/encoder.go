package mermaid

import (
	"strings"
)

const (
	DefaultInkURL  = "https://mermaid.ink"
	DefaultLiveURL = "https://mermaid.live"
)

// Encoder builds mermaid.ink image links and mermaid.live editor links.
type Encoder struct {
	InkURL  string
	LiveURL string
	Serde   Serde
}

// NewEncoder returns an encoder using pako payloads. Empty URLs fall back to
// the public services.
func NewEncoder(inkURL, liveURL string) Encoder {
	if inkURL == "" {
		inkURL = DefaultInkURL
	}
	if liveURL == "" {
		liveURL = DefaultLiveURL
	}
	return Encoder{
		InkURL:  strings.TrimRight(inkURL, "/"),
		LiveURL: strings.TrimRight(liveURL, "/"),
		Serde:   PakoSerde{},
	}
}

// BuildLiveEditorURL returns the mermaid.ink SVG link for state together with
// the state's code, untouched.
func (e Encoder) BuildLiveEditorURL(state State) (string, string, error) {
	payload, err := EncodePayload(state, e.serde())
	if err != nil {
		return "", "", err
	}
	return e.InkURL + "/svg/" + payload, state.Code, nil
}

// EditURL returns the mermaid.live link that opens state in the editor.
func (e Encoder) EditURL(state State) (string, error) {
	payload, err := EncodePayload(state, e.serde())
	if err != nil {
		return "", err
	}
	return e.LiveURL + "/edit#" + payload, nil
}

func (e Encoder) serde() Serde {
	if e.Serde == nil {
		return PakoSerde{}
	}
	return e.Serde
}
