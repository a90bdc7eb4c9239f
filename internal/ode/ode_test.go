package ode

import (
	"errors"
	"math"
	"testing"
)

func exponentialDecay(_ float64, y, dy []float64) {
	dy[0] = -y[0]
	dy[1] = -2 * y[1]
}

func TestSolveExponentialDecayAtRequestedTimes(t *testing.T) {
	times := []float64{0, 0.3, 0.75, 1, 2.5, 4}
	res, err := Solve(exponentialDecay, []float64{1, 3}, times, Options{RelTol: 1e-8, AbsTol: 1e-10})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Reached != len(times) {
		t.Fatalf("reached=%d want=%d", res.Reached, len(times))
	}
	for k, tt := range times {
		want0 := math.Exp(-tt)
		want1 := 3 * math.Exp(-2*tt)
		if math.Abs(res.Y[0][k]-want0) > 1e-6 {
			t.Fatalf("y0(%g)=%g want %g", tt, res.Y[0][k], want0)
		}
		if math.Abs(res.Y[1][k]-want1) > 1e-6 {
			t.Fatalf("y1(%g)=%g want %g", tt, res.Y[1][k], want1)
		}
	}
}

func TestSolveDefaultTolerancesStayClose(t *testing.T) {
	times := make([]float64, 21)
	for i := range times {
		times[i] = float64(i) * 0.5
	}
	res, err := Solve(exponentialDecay, []float64{1, 1}, times, DefaultOptions())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for k, tt := range times {
		if math.Abs(res.Y[0][k]-math.Exp(-tt)) > 1e-3 {
			t.Fatalf("y0(%g)=%g want %g", tt, res.Y[0][k], math.Exp(-tt))
		}
	}
	if res.Stats.Steps == 0 || res.Stats.Evaluations == 0 {
		t.Fatalf("expected solver stats, got %+v", res.Stats)
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	logistic := func(_ float64, y, dy []float64) {
		dy[0] = 1.3 * y[0] * (1 - y[0]/7)
	}
	times := []float64{0, 1, 2, 3, 5, 8}
	a, err := Solve(logistic, []float64{0.2}, times, DefaultOptions())
	if err != nil {
		t.Fatalf("solve a: %v", err)
	}
	b, err := Solve(logistic, []float64{0.2}, times, DefaultOptions())
	if err != nil {
		t.Fatalf("solve b: %v", err)
	}
	for k := range times {
		if a.Y[0][k] != b.Y[0][k] {
			t.Fatalf("non-deterministic at %d: %v vs %v", k, a.Y[0][k], b.Y[0][k])
		}
	}
}

func TestSolveStartsAtFirstRequestedTime(t *testing.T) {
	times := []float64{2, 2, 3}
	res, err := Solve(exponentialDecay, []float64{1, 1}, times, Options{RelTol: 1e-9, AbsTol: 1e-12})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Y[0][0] != 1 || res.Y[0][1] != 1 {
		t.Fatalf("expected initial state at repeated start time, got %v", res.Y[0])
	}
	if math.Abs(res.Y[0][2]-math.Exp(-1)) > 1e-7 {
		t.Fatalf("y(3)=%g want %g", res.Y[0][2], math.Exp(-1))
	}
}

func TestSolveSinglePoint(t *testing.T) {
	res, err := Solve(exponentialDecay, []float64{4, 5}, []float64{0}, DefaultOptions())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Reached != 1 || res.Y[0][0] != 4 || res.Y[1][0] != 5 {
		t.Fatalf("unexpected single point result: %+v", res)
	}
}

func TestSolveReportsNonFiniteDerivative(t *testing.T) {
	f := func(_ float64, y, dy []float64) {
		dy[0] = y[0] / (y[0] - 1)
	}
	res, err := Solve(f, []float64{1}, []float64{0, 1}, DefaultOptions())
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
	if res.Reached != 1 {
		t.Fatalf("expected only the initial point, reached=%d", res.Reached)
	}
	if !math.IsNaN(res.Y[0][1]) {
		t.Fatalf("expected NaN for unreached point, got %g", res.Y[0][1])
	}
}

func TestSolveBlowUpFails(t *testing.T) {
	// y' = y^2 with y(0)=1 explodes at t=1.
	f := func(_ float64, y, dy []float64) {
		dy[0] = y[0] * y[0]
	}
	res, err := Solve(f, []float64{1}, []float64{0, 0.5, 2}, DefaultOptions())
	if err == nil {
		t.Fatal("expected failure past the singularity")
	}
	if res.Reached < 2 {
		t.Fatalf("expected t=0.5 to be reached before failure, reached=%d", res.Reached)
	}
	if math.Abs(res.Y[0][1]-2) > 1e-2 {
		t.Fatalf("y(0.5)=%g want 2", res.Y[0][1])
	}
	if !math.IsNaN(res.Y[0][2]) {
		t.Fatalf("expected NaN sentinel, got %g", res.Y[0][2])
	}
}

func TestSolveRejectsDecreasingTimes(t *testing.T) {
	if _, err := Solve(exponentialDecay, []float64{1, 1}, []float64{0, 2, 1}, DefaultOptions()); err == nil {
		t.Fatal("expected error for decreasing output times")
	}
}

func TestSolveMaxSteps(t *testing.T) {
	_, err := Solve(exponentialDecay, []float64{1, 1}, []float64{0, 100}, Options{RelTol: 1e-12, AbsTol: 1e-14, MaxSteps: 3})
	if !errors.Is(err, ErrMaxSteps) {
		t.Fatalf("expected ErrMaxSteps, got %v", err)
	}
}
