package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
)

// ScalerKind selects the normalization applied by a Scaler.
type ScalerKind string

const (
	ScalerStandard ScalerKind = "standard"
	ScalerMinMax   ScalerKind = "minmax"
)

// IsValid reports whether k is a known scaler kind.
func (k ScalerKind) IsValid() bool {
	return k == ScalerStandard || k == ScalerMinMax
}

// Scaler is a column-wise affine transform x' = (x - shift) / scale whose
// parameters are frozen by the first Fit. A Scaler is not safe for
// concurrent Fit; build one per invocation.
type Scaler struct {
	kind   ScalerKind
	name   string
	shift  []float64
	scale  []float64
	fitted bool
}

// NewScaler creates an unfitted scaler. name is used in error messages.
func NewScaler(kind ScalerKind, name string) (*Scaler, error) {
	if !kind.IsValid() {
		return nil, &models.InvalidInputError{Field: "scaler", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	return &Scaler{kind: kind, name: name}, nil
}

func (s *Scaler) Kind() ScalerKind { return s.kind }

func (s *Scaler) Fitted() bool { return s.fitted }

// Fit computes per-column parameters from data. Columns with zero spread get
// scale 1 so that transforms stay finite.
func (s *Scaler) Fit(data [][]float64) error {
	if s.fitted {
		return &models.InvalidInputError{Field: s.name, Reason: "scaler already fitted"}
	}
	if len(data) == 0 {
		return &models.InsufficientDataError{Op: s.name + " fit", Need: 1, Have: 0}
	}
	cols := len(data[0])
	if cols == 0 {
		return &models.InvalidInputError{Field: s.name, Reason: "rows have no columns"}
	}
	shift := make([]float64, cols)
	scale := make([]float64, cols)
	col := make([]float64, len(data))
	for j := 0; j < cols; j++ {
		for i, row := range data {
			if len(row) != cols {
				return columnMismatch(s.name, cols, len(row))
			}
			col[i] = row[j]
		}
		switch s.kind {
		case ScalerStandard:
			mean, variance := stat.PopMeanVariance(col, nil)
			shift[j] = mean
			scale[j] = math.Sqrt(variance)
		case ScalerMinMax:
			lo := floats.Min(col)
			shift[j] = lo
			scale[j] = floats.Max(col) - lo
		}
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}
	s.shift, s.scale, s.fitted = shift, scale, true
	return nil
}

// Transform applies the frozen parameters. The input is not modified.
func (s *Scaler) Transform(data [][]float64) ([][]float64, error) {
	return s.apply(data, func(x, shift, scale float64) float64 { return (x - shift) / scale })
}

// InverseTransform maps scaled values back to the original units.
func (s *Scaler) InverseTransform(data [][]float64) ([][]float64, error) {
	return s.apply(data, func(x, shift, scale float64) float64 { return x*scale + shift })
}

// FitColumn fits a single-column scaler on xs.
func (s *Scaler) FitColumn(xs []float64) error {
	return s.Fit(asColumn(xs))
}

// TransformColumn transforms a single column.
func (s *Scaler) TransformColumn(xs []float64) ([]float64, error) {
	out, err := s.Transform(asColumn(xs))
	if err != nil {
		return nil, err
	}
	return fromColumn(out), nil
}

// InverseColumn inverts a single column.
func (s *Scaler) InverseColumn(xs []float64) ([]float64, error) {
	out, err := s.InverseTransform(asColumn(xs))
	if err != nil {
		return nil, err
	}
	return fromColumn(out), nil
}

func (s *Scaler) apply(data [][]float64, fn func(x, shift, scale float64) float64) ([][]float64, error) {
	if !s.fitted {
		return nil, &models.NotFittedError{Component: s.name}
	}
	out := make([][]float64, len(data))
	for i, row := range data {
		if len(row) != len(s.shift) {
			return nil, columnMismatch(s.name, len(s.shift), len(row))
		}
		r := make([]float64, len(row))
		for j, x := range row {
			r[j] = fn(x, s.shift[j], s.scale[j])
		}
		out[i] = r
	}
	return out, nil
}

func columnMismatch(name string, want, got int) error {
	return &models.InvalidInputError{Field: name, Reason: fmt.Sprintf("expected %d columns, got %d", want, got)}
}

func asColumn(xs []float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = []float64{x}
	}
	return out
}

func fromColumn(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}
