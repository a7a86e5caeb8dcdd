package risk

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is an ordered risk level. Higher values are more severe.
type Tier int

const (
	TierTrivial Tier = iota + 1
	TierTolerable
	TierModerate
	TierImportant
	TierIntolerable
)

var tierNames = map[Tier]string{
	TierTrivial:     "trivial",
	TierTolerable:   "tolerable",
	TierModerate:    "moderado",
	TierImportant:   "importante",
	TierIntolerable: "intolerable",
}

var tierLabels = map[Tier]string{
	TierTrivial:     "Trivial",
	TierTolerable:   "Tolerable",
	TierModerate:    "Moderado",
	TierImportant:   "Importante",
	TierIntolerable: "Intolerable",
}

// ParseTier accepts the identifiers produced by Tier.String.
func ParseTier(s string) (Tier, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown risk tier %q", s)
}

func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Label is the display name used on the IPERC matrix.
func (t Tier) Label() string { return tierLabels[t] }

// RequiresAction reports whether the tier mandates additional controls
// before work may proceed.
func (t Tier) RequiresAction() bool { return t >= TierImportant }

func (t Tier) MarshalText() ([]byte, error) {
	if _, ok := tierNames[t]; !ok {
		return nil, fmt.Errorf("invalid risk tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *Tier) UnmarshalYAML(node *yaml.Node) error {
	return t.UnmarshalText([]byte(node.Value))
}

// Risk value bounds for inputs in [1,5]: (1+1+1+1)*1 and (5+5+5+5)*5.
const (
	MinRiskValue = 4
	MaxRiskValue = 100
)

// Band maps an inclusive risk value range to a tier.
type Band struct {
	Tier Tier `json:"nivel" yaml:"tier"`
	Min  int  `json:"min" yaml:"min"`
	Max  int  `json:"max" yaml:"max"`
}

// Matrix is an ordered list of bands.
type Matrix struct {
	Bands []Band `json:"bandas" yaml:"bands"`
}

// DefaultMatrix returns the bands used when no matrix file is configured.
func DefaultMatrix() Matrix {
	return Matrix{Bands: []Band{
		{Tier: TierTrivial, Min: 4, Max: 11},
		{Tier: TierTolerable, Min: 12, Max: 22},
		{Tier: TierModerate, Min: 23, Max: 44},
		{Tier: TierImportant, Min: 45, Max: 67},
		{Tier: TierIntolerable, Min: 68, Max: 100},
	}}
}

// Validate requires contiguous bands covering [MinRiskValue, MaxRiskValue]
// with strictly increasing tiers, which makes the value-to-tier mapping
// monotonic.
func (m Matrix) Validate() error {
	if len(m.Bands) == 0 {
		return fmt.Errorf("risk matrix has no bands")
	}
	next := MinRiskValue
	var prev Tier
	for i, b := range m.Bands {
		if _, ok := tierNames[b.Tier]; !ok {
			return fmt.Errorf("band %d: invalid tier %d", i, int(b.Tier))
		}
		if b.Tier <= prev {
			return fmt.Errorf("band %d: tier %s does not increase over %s", i, b.Tier, prev)
		}
		if b.Min != next {
			return fmt.Errorf("band %d: starts at %d, expected %d", i, b.Min, next)
		}
		if b.Max < b.Min {
			return fmt.Errorf("band %d: max %d is below min %d", i, b.Max, b.Min)
		}
		prev = b.Tier
		next = b.Max + 1
	}
	if next != MaxRiskValue+1 {
		return fmt.Errorf("risk matrix ends at %d, expected %d", next-1, MaxRiskValue)
	}
	return nil
}

// TierFor returns the tier of a risk value inside the covered range.
func (m Matrix) TierFor(value int) (Tier, bool) {
	for _, b := range m.Bands {
		if value >= b.Min && value <= b.Max {
			return b.Tier, true
		}
	}
	return 0, false
}

// LoadMatrix reads and validates a YAML matrix file:
//
//	bands:
//	  - {tier: trivial, min: 4, max: 11}
//	  - {tier: tolerable, min: 12, max: 22}
func LoadMatrix(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("read risk matrix: %w", err)
	}
	return ParseMatrix(data)
}

// ParseMatrix decodes and validates YAML matrix content.
func ParseMatrix(data []byte) (Matrix, error) {
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Matrix{}, fmt.Errorf("parse risk matrix: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}
