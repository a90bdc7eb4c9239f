package model

import "math"

// Kind identifies a growth-kinetics variant from the catalog.
type Kind string

const (
	KindMonod      Kind = "monod"
	KindInhibition Kind = "inhibition"
)

// StateNames lists the tracked state variables in trajectory order.
var StateNames = []string{"X", "S", "P"}

const StateCount = 3

type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bound) Width() float64 {
	return b.Max - b.Min
}

func (b Bound) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bound) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Bounds holds one box constraint per optimized parameter.
type Bounds []Bound

// FixedParameters maps parameter names to caller-supplied constants.
type FixedParameters map[string]float64

// Trajectory is a time grid plus one series per state variable.
type Trajectory struct {
	Time   []float64   `json:"time"`
	States [][]float64 `json:"states"`
}

func NewTrajectory(times []float64, stateCount int) Trajectory {
	states := make([][]float64, stateCount)
	for i := range states {
		states[i] = make([]float64, len(times))
	}
	return Trajectory{
		Time:   append([]float64(nil), times...),
		States: states,
	}
}

func (t Trajectory) Len() int {
	return len(t.Time)
}

// Series returns the series of state i, or nil when out of range.
func (t Trajectory) Series(i int) []float64 {
	if i < 0 || i >= len(t.States) {
		return nil
	}
	return t.States[i]
}

// Finite reports whether every simulated value is finite.
func (t Trajectory) Finite() bool {
	for _, series := range t.States {
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Dataset is the experimentally observed biomass, substrate and product.
type Dataset struct {
	Time []float64 `json:"t"`
	X    []float64 `json:"x"`
	S    []float64 `json:"s"`
	P    []float64 `json:"p"`
}

func (d Dataset) Len() int {
	return len(d.Time)
}

// Observed returns the observed series in trajectory state order.
func (d Dataset) Observed() [][]float64 {
	return [][]float64{d.X, d.S, d.P}
}

// InitialState returns the first observation of each state variable.
func (d Dataset) InitialState() []float64 {
	if d.Len() == 0 || len(d.X) == 0 || len(d.S) == 0 || len(d.P) == 0 {
		return nil
	}
	return []float64{d.X[0], d.S[0], d.P[0]}
}
