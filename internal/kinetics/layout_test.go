package kinetics

import (
	"testing"

	"kinfit/internal/model"
)

func TestLayoutSplitAssembleRoundTripForEveryFixedSubset(t *testing.T) {
	for _, kind := range Kinds() {
		m, err := Lookup(kind)
		if err != nil {
			t.Fatalf("lookup %s: %v", kind, err)
		}
		params := m.Params()
		full := make([]float64, len(params))
		for i := range full {
			full[i] = 0.1 + float64(i)*1.7
		}

		for mask := 0; mask < 1<<len(params); mask++ {
			fixed := model.FixedParameters{}
			for i, p := range params {
				if mask&(1<<i) != 0 {
					fixed[string(p)] = full[i]
				}
			}
			layout, err := NewLayout(m, fixed)
			if err != nil {
				t.Fatalf("%s mask=%b: new layout: %v", kind, mask, err)
			}
			if layout.Dim() != len(params)-len(fixed) {
				t.Fatalf("%s mask=%b: dim=%d want=%d", kind, mask, layout.Dim(), len(params)-len(fixed))
			}
			free, err := layout.Split(full)
			if err != nil {
				t.Fatalf("%s mask=%b: split: %v", kind, mask, err)
			}
			got, err := layout.Assemble(free)
			if err != nil {
				t.Fatalf("%s mask=%b: assemble: %v", kind, mask, err)
			}
			for i := range full {
				if got[i] != full[i] {
					t.Fatalf("%s mask=%b: index %d got=%g want=%g", kind, mask, i, got[i], full[i])
				}
			}
		}
	}
}

func TestLayoutPlacesFixedAtCanonicalIndex(t *testing.T) {
	m, _ := Lookup(model.KindInhibition)
	layout, err := NewLayout(m, model.FixedParameters{"yp": 7, "Ki": 0.25})
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	free := layout.Free()
	want := []Param{ParamMu, ParamYx, ParamKs}
	if len(free) != len(want) {
		t.Fatalf("free=%v want=%v", free, want)
	}
	for i := range want {
		if free[i] != want[i] {
			t.Fatalf("free=%v want=%v", free, want)
		}
	}

	full, err := layout.Assemble([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	expected := []float64{1, 2, 7, 3, 0.25}
	for i := range expected {
		if full[i] != expected[i] {
			t.Fatalf("full=%v want=%v", full, expected)
		}
	}
}

func TestLayoutBoundsExcludeFixedParameters(t *testing.T) {
	m, _ := Lookup(model.KindMonod)
	layout, err := NewLayout(m, model.FixedParameters{"Ks": 2})
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	bounds, err := layout.Bounds(map[string]model.Bound{"mu": {Min: 0.1, Max: 1}})
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	want := model.Bounds{{Min: 0.1, Max: 1}, {Min: 0, Max: 1}, {Min: 0, Max: 20}}
	if len(bounds) != len(want) {
		t.Fatalf("bounds=%v want=%v", bounds, want)
	}
	for i := range want {
		if bounds[i] != want[i] {
			t.Fatalf("bounds=%v want=%v", bounds, want)
		}
	}

	if _, err := layout.Bounds(map[string]model.Bound{"Ks": {Min: 0, Max: 1}}); err == nil {
		t.Fatal("expected error bounding a fixed parameter")
	}
	if _, err := layout.Bounds(map[string]model.Bound{"mu": {Min: 2, Max: 1}}); err == nil {
		t.Fatal("expected error for inverted bound")
	}
}

func TestNewLayoutRejectsUnknownParameter(t *testing.T) {
	m, _ := Lookup(model.KindMonod)
	if _, err := NewLayout(m, model.FixedParameters{"Ki": 1}); err == nil {
		t.Fatal("expected error for Ki on monod model")
	}
}

func TestLayoutAssembleRejectsWrongDimension(t *testing.T) {
	m, _ := Lookup(model.KindMonod)
	layout, _ := NewLayout(m, nil)
	if _, err := layout.Assemble([]float64{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestVectorRequiresEveryParameter(t *testing.T) {
	m, _ := Lookup(model.KindMonod)
	full, err := Vector(m, map[string]float64{"mu": 0.5, "Yx": 0.5, "Yp": 0.3, "Ks": 2})
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	if full[0] != 0.5 || full[3] != 2 {
		t.Fatalf("unexpected vector: %v", full)
	}
	if _, err := Vector(m, map[string]float64{"mu": 0.5}); err == nil {
		t.Fatal("expected missing parameter error")
	}
}
