package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"kinfit/internal/model"
)

var ErrInvalid = errors.New("invalid dataset")

// MinPoints is the smallest series that still constrains a fit.
const MinPoints = 2

var columnAliases = [4][]string{
	{"t", "time"},
	{"x", "biomass"},
	{"s", "substrate"},
	{"p", "product"},
}

// LoadFile reads a CSV dataset from disk.
func LoadFile(path string) (model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a CSV with one observation per row. A header row is detected
// when its first field is not numeric; named columns (t/time, x/biomass,
// s/substrate, p/product) may then appear in any order. Without a header the
// first four columns are taken as t, x, s, p. The result is validated.
func Load(in io.Reader) (model.Dataset, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	columns := [4]int{0, 1, 2, 3}
	var data model.Dataset
	row := 0
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.Dataset{}, fmt.Errorf("read dataset row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}
		if first {
			first = false
			if !numeric(record[0]) {
				columns, err = headerColumns(record)
				if err != nil {
					return model.Dataset{}, err
				}
				continue
			}
		}

		var values [4]float64
		for i, idx := range columns {
			if idx >= len(record) {
				return model.Dataset{}, fmt.Errorf("%w: row %d missing column %s", ErrInvalid, row, columnAliases[i][0])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return model.Dataset{}, fmt.Errorf("%w: parse %s row %d: %v", ErrInvalid, columnAliases[i][0], row, err)
			}
			values[i] = v
		}
		data.Time = append(data.Time, values[0])
		data.X = append(data.X, values[1])
		data.S = append(data.S, values[2])
		data.P = append(data.P, values[3])
	}

	if err := Validate(data); err != nil {
		return model.Dataset{}, err
	}
	return data, nil
}

// Validate checks that every series has the same length as the time grid,
// that values are finite and that times strictly increase.
func Validate(d model.Dataset) error {
	n := len(d.Time)
	if n < MinPoints {
		return fmt.Errorf("%w: need at least %d time points, got %d", ErrInvalid, MinPoints, n)
	}
	series := []struct {
		name   string
		values []float64
	}{
		{"x", d.X},
		{"s", d.S},
		{"p", d.P},
	}
	for _, s := range series {
		if len(s.values) != n {
			return fmt.Errorf("%w: %s has %d values, t has %d", ErrInvalid, s.name, len(s.values), n)
		}
	}
	for i := 0; i < n; i++ {
		if !finite(d.Time[i]) {
			return fmt.Errorf("%w: t[%d] is not finite", ErrInvalid, i)
		}
		if i > 0 && d.Time[i] <= d.Time[i-1] {
			return fmt.Errorf("%w: t must strictly increase (t[%d]=%g, t[%d]=%g)", ErrInvalid, i-1, d.Time[i-1], i, d.Time[i])
		}
		for _, s := range series {
			if !finite(s.values[i]) {
				return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalid, s.name, i)
			}
		}
	}
	return nil
}

func headerColumns(header []string) ([4]int, error) {
	var columns [4]int
	for i, aliases := range columnAliases {
		idx := -1
		for _, alias := range aliases {
			if found := columnIndexByName(header, alias); found >= 0 {
				idx = found
				break
			}
		}
		if idx < 0 {
			return columns, fmt.Errorf("%w: csv column not found: %s", ErrInvalid, aliases[0])
		}
		columns[i] = idx
	}
	return columns, nil
}

func columnIndexByName(header []string, name string) int {
	want := strings.ToLower(name)
	for i, field := range header {
		if strings.ToLower(strings.TrimSpace(field)) == want {
			return i
		}
	}
	return -1
}

func numeric(raw string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return err == nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
