// Package diagram holds the request and result shapes shared by every
// backend, the closed set of supported languages and the error taxonomy.
package diagram

import (
	"fmt"
	"strings"
)

// Language is one of the supported diagram description languages.
type Language int

const (
	PlantUML Language = iota + 1
	Mermaid
	D2
)

// Languages lists every supported language in a stable order.
var Languages = []Language{PlantUML, Mermaid, D2}

func (l Language) String() string {
	switch l {
	case PlantUML:
		return "plantuml"
	case Mermaid:
		return "mermaid"
	case D2:
		return "d2"
	default:
		return fmt.Sprintf("language(%d)", int(l))
	}
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l >= PlantUML && l <= D2
}

// ParseLanguage maps a language tag such as "plantuml" or "D2" to a Language.
// Matching ignores case and surrounding whitespace.
func ParseLanguage(tag string) (Language, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	if normalized == "" {
		return 0, Validation("lang is required")
	}
	for _, l := range Languages {
		if l.String() == normalized {
			return l, nil
		}
	}
	return 0, Validation(fmt.Sprintf("unsupported lang %q", tag))
}

// Options carries the per-backend knobs a request may set. Zero values mean
// the backend default.
type Options struct {
	// Theme is the Mermaid theme name or the D2 theme name.
	Theme string
	// Layout is the D2 layout engine, e.g. "elk" or "dagre".
	Layout string
	// Sketch turns on D2 hand-drawn mode.
	Sketch bool
}

// Request is a single diagram to encode.
type Request struct {
	Language    Language
	DiagramType string
	Source      string
	Options     Options
}

// Validate rejects empty sources and unknown languages.
func (r Request) Validate() error {
	if !r.Language.Valid() {
		if r.Language == 0 {
			return Validation("lang is required")
		}
		return Validation(fmt.Sprintf("unsupported lang %q", r.Language.String()))
	}
	if r.Source == "" {
		return Validation("code must not be empty")
	}
	return nil
}

// Result is what every backend returns: the shareable URL plus the source it
// was built from, unchanged.
type Result struct {
	URL          string
	EchoedSource string
}
