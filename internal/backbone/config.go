// Package backbone defines the face embedding network: a four-stage
// convolutional trunk of depthwise/pointwise blocks followed by an
// embedding head. Variants differ in widths, depths, and whether the
// pointwise layers are replaced with low-rank factorizations.
package backbone

import (
	"fmt"
	"sort"
)

// Config describes one network variant.
type Config struct {
	// Dims is the channel width of each of the four stages.
	Dims [4]int
	// Depths is the block count of each stage.
	Depths [4]int
	// EmbedDim is the width of the output embedding.
	EmbedDim int
	// Gamma is the low-rank ratio for the pointwise and head linear
	// layers. Zero keeps them full rank.
	Gamma float64
}

// InputChannels and InputSize fix the expected input: 112x112 RGB crops.
const (
	InputChannels = 3
	InputSize     = 112
)

var variants = map[string]Config{
	"edgeface_xxs": {
		Dims:     [4]int{24, 48, 88, 168},
		Depths:   [4]int{2, 2, 6, 2},
		EmbedDim: 512,
	},
	"edgeface_xs_gamma_06": {
		Dims:     [4]int{32, 64, 100, 192},
		Depths:   [4]int{3, 3, 9, 3},
		EmbedDim: 512,
		Gamma:    0.6,
	},
	"edgeface_s_gamma_05": {
		Dims:     [4]int{48, 96, 160, 304},
		Depths:   [4]int{3, 3, 9, 3},
		EmbedDim: 512,
		Gamma:    0.5,
	},
}

// ConfigFor returns the configuration of a named variant.
func ConfigFor(name string) (Config, error) {
	cfg, ok := variants[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown model %q (have %v)", name, VariantNames())
	}
	return cfg, nil
}

// VariantNames lists the known variant names, sorted.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
