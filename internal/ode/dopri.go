package ode

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 10.0
	// -1/(q+1) with q = 4, the order of the embedded error estimator.
	errorExponent = -0.2
)

var epsilon = math.Nextafter(1, 2) - 1

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// Difference between the 5th and 4th order weights.
	dpE = [7]float64{
		-71.0 / 57600, 0, 71.0 / 16695, -71.0 / 1920, 17253.0 / 339200, -22.0 / 525, 1.0 / 40,
	}
	// Continuous extension coefficients, one row per stage, for powers x..x^4
	// of the normalized step position.
	dpP = [7][4]float64{
		{1, -8048581381.0 / 2820520608, 8663915743.0 / 2820520608, -12715105075.0 / 11282082432},
		{0, 0, 0, 0},
		{0, 131558114200.0 / 32700410799, -68118460800.0 / 10900136933, 87487479700.0 / 32700410799},
		{0, -1754552775.0 / 470086768, 14199869525.0 / 1410260304, -10690763975.0 / 1880347072},
		{0, 127303824393.0 / 49829197408, -318862633887.0 / 49829197408, 701980252875.0 / 199316789632},
		{0, -282668133.0 / 205662961, 2019193451.0 / 616988883, -1453857185.0 / 822651844},
		{0, 40617522.0 / 29380423, -110615467.0 / 29380423, 69997945.0 / 29380423},
	}
)

type stepper struct {
	f    Func
	opts Options

	t float64
	y []float64
	h float64

	k     [7][]float64
	ynew  []float64
	stage []float64
	errv  []float64

	// State of the last accepted step for dense output.
	tOld  float64
	hLast float64
	yOld  []float64
	q     [][4]float64

	stats Stats
}

func newStepper(f Func, y0 []float64, t0 float64, opts Options) *stepper {
	n := len(y0)
	s := &stepper{
		f:     f,
		opts:  opts,
		t:     t0,
		y:     append([]float64(nil), y0...),
		ynew:  make([]float64, n),
		stage: make([]float64, n),
		errv:  make([]float64, n),
		yOld:  make([]float64, n),
		q:     make([][4]float64, n),
	}
	for i := range s.k {
		s.k[i] = make([]float64, n)
	}
	return s
}

func (s *stepper) eval(t float64, y, dy []float64) {
	s.f(t, y, dy)
	s.stats.Evaluations++
}

func (s *stepper) start(tEnd float64) error {
	s.eval(s.t, s.y, s.k[0])
	if !allFinite(s.k[0]) {
		return ErrNonFinite
	}
	if s.opts.FirstStep > 0 {
		s.h = s.opts.FirstStep
	} else {
		s.h = s.initialStep(tEnd)
	}
	if s.opts.MaxStep > 0 && s.h > s.opts.MaxStep {
		s.h = s.opts.MaxStep
	}
	return nil
}

// initialStep follows Hairer, Norsett and Wanner, "Solving Ordinary
// Differential Equations I", section II.4.
func (s *stepper) initialStep(tEnd float64) float64 {
	span := tEnd - s.t
	n := len(s.y)
	scale := s.stage
	for i := range scale {
		scale[i] = s.opts.AbsTol + math.Abs(s.y[i])*s.opts.RelTol
	}
	d0 := scaledRMS(s.y, scale)
	d1 := scaledRMS(s.k[0], scale)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	floats.AddScaledTo(s.ynew, s.y, h0, s.k[0])
	f1 := s.errv
	s.eval(s.t+h0, s.ynew, f1)
	diff := make([]float64, n)
	floats.SubTo(diff, f1, s.k[0])
	d2 := scaledRMS(diff, scale) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1.0/5)
	}
	h := math.Min(100*h0, math.Min(h1, span))
	if math.IsNaN(h) || h <= 0 {
		h = math.Min(1e-6, span)
	}
	return h
}

// step advances one accepted step toward tEnd.
func (s *stepper) step(tEnd float64) error {
	minStep := 10 * math.Abs(math.Nextafter(s.t, math.Inf(1))-s.t)
	h := s.h
	if s.opts.MaxStep > 0 && h > s.opts.MaxStep {
		h = s.opts.MaxStep
	} else if h < minStep {
		h = minStep
	}

	rejected := false
	for {
		if s.stats.Steps+s.stats.Rejected >= s.opts.MaxSteps {
			return ErrMaxSteps
		}
		if h < minStep {
			return ErrStepSizeUnderflow
		}
		tNew := s.t + h
		if tNew > tEnd {
			tNew = tEnd
		}
		hh := tNew - s.t

		s.trial(hh)
		errNorm := s.errorNorm(hh)
		if !allFinite(s.ynew) || !allFinite(s.k[6]) || math.IsNaN(errNorm) || math.IsInf(errNorm, 0) {
			h = hh * minFactor
			rejected = true
			s.stats.Rejected++
			continue
		}

		if errNorm < 1 {
			factor := maxFactor
			if errNorm > 0 {
				factor = math.Min(maxFactor, safety*math.Pow(errNorm, errorExponent))
			}
			if rejected {
				factor = math.Min(1, factor)
			}
			s.accept(tNew, hh)
			s.h = hh * factor
			return nil
		}

		h = hh * math.Max(minFactor, safety*math.Pow(errNorm, errorExponent))
		rejected = true
		s.stats.Rejected++
	}
}

func (s *stepper) trial(h float64) {
	for i := 1; i < 7; i++ {
		copy(s.stage, s.y)
		for j := 0; j < i; j++ {
			if a := dpA[i][j]; a != 0 {
				floats.AddScaled(s.stage, h*a, s.k[j])
			}
		}
		if i == 6 {
			copy(s.ynew, s.stage)
		}
		s.eval(s.t+dpC[i]*h, s.stage, s.k[i])
	}
}

func (s *stepper) errorNorm(h float64) float64 {
	for i := range s.errv {
		s.errv[i] = 0
	}
	for j := range dpE {
		if dpE[j] != 0 {
			floats.AddScaled(s.errv, h*dpE[j], s.k[j])
		}
	}
	for i := range s.stage {
		s.stage[i] = s.opts.AbsTol + math.Max(math.Abs(s.y[i]), math.Abs(s.ynew[i]))*s.opts.RelTol
	}
	return scaledRMS(s.errv, s.stage)
}

func (s *stepper) accept(tNew, h float64) {
	for n := range s.q {
		for p := 0; p < 4; p++ {
			sum := 0.0
			for j := range dpP {
				sum += s.k[j][n] * dpP[j][p]
			}
			s.q[n][p] = sum
		}
	}
	copy(s.yOld, s.y)
	s.tOld = s.t
	s.hLast = h

	s.t = tNew
	copy(s.y, s.ynew)
	// First same as last.
	s.k[0], s.k[6] = s.k[6], s.k[0]
	s.stats.Steps++
}

// interpolate evaluates the continuous extension of the last accepted step.
func (s *stepper) interpolate(t float64, out []float64) {
	x := (t - s.tOld) / s.hLast
	x2 := x * x
	x3 := x2 * x
	x4 := x3 * x
	for n := range out {
		q := s.q[n]
		out[n] = s.yOld[n] + s.hLast*(q[0]*x+q[1]*x2+q[2]*x3+q[3]*x4)
	}
}

func scaledRMS(v, scale []float64) float64 {
	sum := 0.0
	for i := range v {
		r := v[i] / scale[i]
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(v)))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
