package d2

import "strings"

// themeCatalog maps D2's theme display names to the numeric ids its render
// API takes.
var themeCatalog = map[string]int{
	"Neutral default":           0,
	"Neutral Grey":              1,
	"Flagship Terrastruct":      3,
	"Cool classics":             4,
	"Mixed berry blue":          5,
	"Grape soda":                6,
	"Aubergine":                 7,
	"Colorblind clear":          8,
	"Vanilla nitro cola":        100,
	"Orange creamsicle":         101,
	"Shirley temple":            102,
	"Earth tones":               103,
	"Everglade green":           104,
	"Buttered toast":            105,
	"Dark Mauve":                200,
	"Dark Flagship Terrastruct": 201,
	"Terminal":                  300,
	"Terminal Grayscale":        301,
	"Origami":                   302,
}

// Themes resolves theme names to ids. Lookups ignore case.
type Themes struct {
	byName map[string]int
}

// NewThemes returns the built-in catalog with overrides applied on top.
func NewThemes(overrides map[string]int) Themes {
	byName := make(map[string]int, len(themeCatalog)+len(overrides))
	for name, id := range themeCatalog {
		byName[normalizeTheme(name)] = id
	}
	for name, id := range overrides {
		byName[normalizeTheme(name)] = id
	}
	return Themes{byName: byName}
}

// ID returns the id for name. Unknown and empty names map to 0, which the
// render API treats as the default theme.
func (t Themes) ID(name string) int {
	return t.byName[normalizeTheme(name)]
}

func normalizeTheme(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
