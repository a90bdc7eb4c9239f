package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kinfit/internal/model"
)

func TestLoadWithHeaderInAnyOrder(t *testing.T) {
	in := strings.NewReader("time,product,biomass,substrate\n0,0,0.1,10\n0.5,0.01,0.12,9.9\n\n1,0.03,0.15,9.8\n")
	d, err := Load(in)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Len() != 3 {
		t.Fatalf("len=%d want 3", d.Len())
	}
	if d.X[0] != 0.1 || d.S[2] != 9.8 || d.P[1] != 0.01 || d.Time[1] != 0.5 {
		t.Fatalf("columns mapped incorrectly: %+v", d)
	}
}

func TestLoadWithoutHeaderIsPositional(t *testing.T) {
	d, err := Load(strings.NewReader("0, 0.1, 10, 0\n1, 0.2, 9, 0.1\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Time[1] != 1 || d.X[1] != 0.2 || d.S[1] != 9 || d.P[1] != 0.1 {
		t.Fatalf("unexpected dataset %+v", d)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("t,x,s,p\n0,1,2,3\n1,1,2,3\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("len=%d want 2", d.Len())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestLoadRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "missing column", in: "t,x,s\n0,1,2\n1,1,2\n"},
		{name: "short row", in: "0,1,2,3\n1,1,2\n"},
		{name: "not a number", in: "t,x,s,p\n0,1,2,3\n1,abc,2,3\n"},
		{name: "single point", in: "t,x,s,p\n0,1,2,3\n"},
		{name: "empty", in: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tc.in)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	good := model.Dataset{
		Time: []float64{0, 1, 2},
		X:    []float64{1, 2, 3},
		S:    []float64{3, 2, 1},
		P:    []float64{0, 0.1, 0.2},
	}
	if err := Validate(good); err != nil {
		t.Fatalf("validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*model.Dataset)
	}{
		{name: "unequal lengths", mutate: func(d *model.Dataset) { d.S = d.S[:2] }},
		{name: "repeated time", mutate: func(d *model.Dataset) { d.Time = []float64{0, 1, 1} }},
		{name: "decreasing time", mutate: func(d *model.Dataset) { d.Time = []float64{0, 2, 1} }},
		{name: "nan value", mutate: func(d *model.Dataset) { d.P = []float64{0, math.NaN(), 0.2} }},
		{name: "infinite time", mutate: func(d *model.Dataset) { d.Time = []float64{0, 1, math.Inf(1)} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := model.Dataset{
				Time: append([]float64(nil), good.Time...),
				X:    append([]float64(nil), good.X...),
				S:    append([]float64(nil), good.S...),
				P:    append([]float64(nil), good.P...),
			}
			tc.mutate(&d)
			if err := Validate(d); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
