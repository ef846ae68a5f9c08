package forecast

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
)

// splitEpsilon absorbs fp error in total*fraction so that exact products
// (e.g. 10*0.8) are not rounded up.
const splitEpsilon = 1e-9

// LSTMSplit slides a window of nSteps rows over the feature table. Window i
// covers rows [i, i+nSteps) and is labelled with target[i+nSteps-1]. The
// result has len(features)-nSteps+1 windows.
func LSTMSplit(features [][]float64, target []float64, dates []time.Time, nSteps int) ([]models.Window, error) {
	if nSteps < 1 {
		return nil, &models.InvalidInputError{Field: "n_steps", Reason: fmt.Sprintf("must be >= 1, got %d", nSteps)}
	}
	if len(features) != len(target) || len(dates) != len(target) {
		return nil, &models.InvalidInputError{
			Field:  "series",
			Reason: fmt.Sprintf("column lengths differ: features=%d target=%d dates=%d", len(features), len(target), len(dates)),
		}
	}
	if len(features) < nSteps {
		return nil, &models.InsufficientDataError{Op: "lstm split", Need: nSteps, Have: len(features)}
	}
	total := len(features) - nSteps + 1
	out := make([]models.Window, 0, total)
	for i := 0; i < total; i++ {
		end := i + nSteps
		out = append(out, models.Window{
			Features:  features[i:end:end],
			Label:     target[end-1],
			LabelDate: dates[end-1],
		})
	}
	return out, nil
}

// SplitIndex returns ceil(total*fraction), the number of training windows.
func SplitIndex(total int, fraction float64) int {
	idx := int(math.Ceil(float64(total)*fraction - splitEpsilon))
	if idx < 0 {
		return 0
	}
	if idx > total {
		return total
	}
	return idx
}

// ChronologicalSplit partitions windows in time order without shuffling. The
// first ceil(len*fraction) windows train, the rest test.
func ChronologicalSplit(windows []models.Window, trainFraction float64) (models.SplitResult, error) {
	if !(trainFraction > 0 && trainFraction <= 1) {
		return models.SplitResult{}, &models.InvalidInputError{
			Field:  "train_fraction",
			Reason: fmt.Sprintf("must be in (0, 1], got %v", trainFraction),
		}
	}
	split := SplitIndex(len(windows), trainFraction)
	res := models.SplitResult{
		Train: windows[:split:split],
		Test:  windows[split:],
	}
	res.TestDates = make([]time.Time, len(res.Test))
	for i, w := range res.Test {
		res.TestDates[i] = w.LabelDate
	}
	return res, nil
}

// AlignDates truncates dates to the first n entries.
func AlignDates(dates []time.Time, n int) []time.Time {
	if n < 0 {
		n = 0
	}
	if n > len(dates) {
		n = len(dates)
	}
	out := make([]time.Time, n)
	copy(out, dates[:n])
	return out
}
