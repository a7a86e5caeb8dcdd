// Package risk computes IPERC risk values. Scores are derived on every read
// and never stored.
package risk

import (
	"strings"

	"github.com/sst/sst/internal/domain/safety"
)

// Input bounds for every factor and for severity.
const (
	MinFactor = 1
	MaxFactor = 5
)

// ReasonOutOfRange prefixes the message of an input validation error.
const ReasonOutOfRange = "out_of_range"

// Inputs are the IPERC scoring factors. A..D are the people-exposed,
// procedures, training and exposure-frequency indices.
type Inputs struct {
	A        int `json:"indice_personas"`
	B        int `json:"indice_procedimientos"`
	C        int `json:"indice_capacitacion"`
	D        int `json:"indice_exposicion"`
	Severity int `json:"indice_severidad"`
}

// Result is the derived scoring of one set of inputs.
type Result struct {
	ProbabilityIndex int  `json:"indice_probabilidad"`
	RiskValue        int  `json:"valor_riesgo"`
	Tier             Tier `json:"nivel"`
}

// Engine scores inputs against a validated matrix.
type Engine struct {
	matrix Matrix
}

// NewEngine validates m and returns an engine bound to it.
func NewEngine(m Matrix) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	bands := make([]Band, len(m.Bands))
	copy(bands, m.Bands)
	return &Engine{matrix: Matrix{Bands: bands}}, nil
}

// DefaultEngine is an engine over DefaultMatrix.
func DefaultEngine() *Engine {
	e, err := NewEngine(DefaultMatrix())
	if err != nil {
		panic(err)
	}
	return e
}

// Matrix returns a copy of the engine's bands.
func (e *Engine) Matrix() Matrix {
	bands := make([]Band, len(e.matrix.Bands))
	copy(bands, e.matrix.Bands)
	return Matrix{Bands: bands}
}

// Score computes probabilityIndex = A+B+C+D and riskValue = probabilityIndex
// x severity. Inputs outside [1,5] are rejected, never clamped, and the error
// names every offending field.
func (e *Engine) Score(in Inputs) (Result, error) {
	var bad []string
	check := func(name string, v int) {
		if v < MinFactor || v > MaxFactor {
			bad = append(bad, name)
		}
	}
	check("indice_personas", in.A)
	check("indice_procedimientos", in.B)
	check("indice_capacitacion", in.C)
	check("indice_exposicion", in.D)
	check("indice_severidad", in.Severity)
	if len(bad) > 0 {
		scoreErrors.Inc()
		return Result{}, safety.Validation("score risk", bad, "%s: %s must be within [%d,%d]",
			ReasonOutOfRange, strings.Join(bad, ", "), MinFactor, MaxFactor)
	}

	p := in.A + in.B + in.C + in.D
	v := p * in.Severity
	tier, ok := e.matrix.TierFor(v)
	if !ok {
		// Unreachable with a validated matrix.
		return Result{}, safety.Validation("score risk", nil, "risk value %d is outside the matrix", v)
	}
	scoresTotal.WithLabelValues(tier.String()).Inc()
	return Result{ProbabilityIndex: p, RiskValue: v, Tier: tier}, nil
}

// LineScore is the derived scoring of a stored risk line.
type LineScore struct {
	Result
	Residual *Result `json:"residual,omitempty"`
}

// ScoreLine scores a line and, when present, its residual factors.
func (e *Engine) ScoreLine(line safety.RiskLine) (LineScore, error) {
	a, b, c, d, s := line.Factors()
	res, err := e.Score(Inputs{A: a, B: b, C: c, D: d, Severity: s})
	if err != nil {
		return LineScore{}, err
	}
	out := LineScore{Result: res}
	if r := line.Residual; r != nil {
		residual, err := e.Score(Inputs{A: r.PeopleExposed, B: r.Procedures, C: r.Training,
			D: r.ExposureFrequency, Severity: r.Severity})
		if err != nil {
			return LineScore{}, err
		}
		out.Residual = &residual
	}
	return out, nil
}
