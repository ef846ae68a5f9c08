package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/floats"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
)

// Column names accepted in SequenceConfig.Features and Target.
const (
	ColOpen     = "open"
	ColHigh     = "high"
	ColLow      = "low"
	ColClose    = "close"
	ColVolume   = "volume"
	ColSMAShort = "sma_short"
	ColSMALong  = "sma_long"
	ColReturn1D = "return_1d"
	ColReturn5D = "return_5d"
)

type columnFunc func(b models.Bar, r models.IndicatorRow) null.Float

var columns = map[string]columnFunc{
	ColOpen:     func(b models.Bar, _ models.IndicatorRow) null.Float { return null.FloatFrom(b.Open) },
	ColHigh:     func(b models.Bar, _ models.IndicatorRow) null.Float { return null.FloatFrom(b.High) },
	ColLow:      func(b models.Bar, _ models.IndicatorRow) null.Float { return null.FloatFrom(b.Low) },
	ColClose:    func(b models.Bar, _ models.IndicatorRow) null.Float { return null.FloatFrom(b.Close) },
	ColVolume:   func(b models.Bar, _ models.IndicatorRow) null.Float { return null.FloatFrom(b.Volume) },
	ColSMAShort: func(_ models.Bar, r models.IndicatorRow) null.Float { return r.SMAShort },
	ColSMALong:  func(_ models.Bar, r models.IndicatorRow) null.Float { return r.SMALong },
	ColReturn1D: func(_ models.Bar, r models.IndicatorRow) null.Float { return r.Return1D },
	ColReturn5D: func(_ models.Bar, r models.IndicatorRow) null.Float { return r.Return5D },
}

// SequenceConfig holds the sequence-model hyperparameters. Seed 0 means a
// fresh random seed per invocation.
type SequenceConfig struct {
	Features      []string
	Target        string
	NSteps        int
	TrainFraction float64
	HiddenUnits   int
	Epochs        int
	BatchSize     int
	LearningRate  float64
	FeatureScaler ScalerKind
	TargetScaler  ScalerKind
	Seed          int64
}

// DefaultSequenceConfig returns the stock configuration.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Features:      []string{ColOpen, ColHigh, ColLow},
		Target:        ColClose,
		NSteps:        2,
		TrainFraction: 0.8,
		HiddenUnits:   32,
		Epochs:        50,
		BatchSize:     4,
		LearningRate:  0.001,
		FeatureScaler: ScalerMinMax,
		TargetScaler:  ScalerStandard,
	}
}

func (c SequenceConfig) Validate() error {
	bad := func(field, reason string, args ...any) error {
		return &models.InvalidInputError{Field: field, Reason: fmt.Sprintf(reason, args...)}
	}
	if len(c.Features) == 0 {
		return bad("features", "at least one feature column is required")
	}
	for _, f := range c.Features {
		if _, ok := columns[f]; !ok {
			return bad("features", "unknown column %q", f)
		}
	}
	if _, ok := columns[c.Target]; !ok {
		return bad("target", "unknown column %q", c.Target)
	}
	switch {
	case c.NSteps < 1:
		return bad("n_steps", "must be >= 1, got %d", c.NSteps)
	case !(c.TrainFraction > 0 && c.TrainFraction < 1):
		return bad("train_fraction", "must be in (0, 1) to leave a test window, got %v", c.TrainFraction)
	case c.minWindows() == 0:
		return bad("train_fraction", "%v leaves an empty split side below %d windows", c.TrainFraction, maxSplitWindows)
	case c.HiddenUnits < 1:
		return bad("hidden_units", "must be >= 1, got %d", c.HiddenUnits)
	case c.Epochs < 1:
		return bad("epochs", "must be >= 1, got %d", c.Epochs)
	case c.BatchSize < 1:
		return bad("batch_size", "must be >= 1, got %d", c.BatchSize)
	case !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0):
		return bad("learning_rate", "must be > 0, got %v", c.LearningRate)
	case !c.FeatureScaler.IsValid():
		return bad("feature_scaler", "unknown kind %q", c.FeatureScaler)
	case !c.TargetScaler.IsValid():
		return bad("target_scaler", "unknown kind %q", c.TargetScaler)
	}
	return nil
}

// maxSplitWindows caps the search for a usable split. Fractions that need
// more windows than this to leave both sides non-empty are rejected.
const maxSplitWindows = 1 << 20

// minWindows returns the smallest window count whose split leaves both sides
// non-empty, or 0 when none exists up to maxSplitWindows.
func (c SequenceConfig) minWindows() int {
	for w := 2; w <= maxSplitWindows; w++ {
		if s := SplitIndex(w, c.TrainFraction); s >= 1 && s < w {
			return w
		}
	}
	return 0
}

// MinRows is the smallest usable row count that yields a non-empty train
// and test split. It is 0 for a config that fails Validate on train_fraction.
func (c SequenceConfig) MinRows() int {
	w := c.minWindows()
	if w == 0 {
		return 0
	}
	return w + c.NSteps - 1
}

// SequenceForecaster backtests an LSTM regressor on the most recent part of
// the series.
type SequenceForecaster struct {
	cfg SequenceConfig
}

var _ service.Forecaster = (*SequenceForecaster)(nil)

func NewSequenceForecaster(cfg SequenceConfig) (*SequenceForecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sequence forecaster: %w", err)
	}
	cfg.Features = append([]string(nil), cfg.Features...)
	return &SequenceForecaster{cfg: cfg}, nil
}

func (f *SequenceForecaster) Strategy() models.Strategy { return models.StrategySequence }

// Config returns a copy of the configuration.
func (f *SequenceForecaster) Config() SequenceConfig {
	c := f.cfg
	c.Features = append([]string(nil), f.cfg.Features...)
	return c
}

type featureTable struct {
	rows   [][]float64
	target []float64
	dates  []time.Time
}

// buildTable extracts the configured columns, dropping rows with any
// undefined or non-finite value.
func (f *SequenceForecaster) buildTable(series models.PriceSeries) featureTable {
	bars := series.Bars()
	ind := features.ComputeIndicators(series)
	tgt := columns[f.cfg.Target]
	var t featureTable
rows:
	for i, b := range bars {
		y := tgt(b, ind[i])
		if !y.Valid || !isFinite(y.Float64) {
			continue
		}
		row := make([]float64, len(f.cfg.Features))
		for j, name := range f.cfg.Features {
			v := columns[name](b, ind[i])
			if !v.Valid || !isFinite(v.Float64) {
				continue rows
			}
			row[j] = v.Float64
		}
		t.rows = append(t.rows, row)
		t.target = append(t.target, y.Float64)
		t.dates = append(t.dates, b.Date)
	}
	return t
}

// Forecast trains a fresh network on the chronologically first part of the
// series and predicts the held-out remainder.
func (f *SequenceForecaster) Forecast(ctx context.Context, series models.PriceSeries, opts service.ForecastOptions) (models.Analysis, error) {
	cfg := f.cfg
	table := f.buildTable(series)
	usable := len(table.rows)
	if need := cfg.MinRows(); usable < need {
		return models.Analysis{}, &models.InsufficientDataError{Op: "sequence forecast", Need: need, Have: usable}
	}

	total := usable - cfg.NSteps + 1
	split := SplitIndex(total, cfg.TrainFraction)

	featScaler, err := NewScaler(cfg.FeatureScaler, "feature scaler")
	if err != nil {
		return models.Analysis{}, err
	}
	if err := featScaler.Fit(table.rows[:split+cfg.NSteps-1]); err != nil {
		return models.Analysis{}, fmt.Errorf("fit features: %w", err)
	}
	scaled, err := featScaler.Transform(table.rows)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("scale features: %w", err)
	}

	windows, err := LSTMSplit(scaled, table.target, table.dates, cfg.NSteps)
	if err != nil {
		return models.Analysis{}, err
	}
	parts, err := ChronologicalSplit(windows, cfg.TrainFraction)
	if err != nil {
		return models.Analysis{}, err
	}
	if len(parts.Train) == 0 || len(parts.Test) == 0 {
		return models.Analysis{}, &models.InsufficientDataError{Op: "sequence forecast", Need: cfg.MinRows(), Have: usable}
	}

	trainX, trainY := unzip(parts.Train)
	testX, testY := unzip(parts.Test)

	tgtScaler, err := NewScaler(cfg.TargetScaler, "target scaler")
	if err != nil {
		return models.Analysis{}, err
	}
	if err := tgtScaler.FitColumn(trainY); err != nil {
		return models.Analysis{}, fmt.Errorf("fit target: %w", err)
	}
	trainYs, err := tgtScaler.TransformColumn(trainY)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("scale target: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = freshSeed()
	}
	net := newLSTMNet(len(cfg.Features), cfg.HiddenUnits, rand.New(rand.NewSource(seed)))
	history, err := net.fit(ctx, trainX, trainYs, trainConfig{
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		OnEpoch:      opts.Progress,
	})
	if err != nil {
		return models.Analysis{}, err
	}

	scaledPred := net.predict(testX)
	for _, p := range scaledPred {
		if !isFinite(p) {
			return models.Analysis{}, &models.TrainingFailure{Epoch: cfg.Epochs, Reason: "prediction is not finite"}
		}
	}
	pred, err := tgtScaler.InverseColumn(scaledPred)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("invert predictions: %w", err)
	}

	res := models.ForecastResult{
		Dates:     AlignDates(parts.TestDates, len(pred)),
		Predicted: pred,
		Actual:    testY,
	}
	return models.Analysis{
		Strategy: models.StrategySequence,
		Backtest: &models.Backtest{
			Forecast:  res,
			EpochLoss: history,
			TrainSize: len(parts.Train),
			TestSize:  len(parts.Test),
			RMSE:      RMSE(pred, testY),
			MAE:       MAE(pred, testY),
			Seed:      seed,
		},
	}, nil
}

func unzip(ws []models.Window) ([][][]float64, []float64) {
	xs := make([][][]float64, len(ws))
	ys := make([]float64, len(ws))
	for i, w := range ws {
		xs[i] = w.Features
		ys[i] = w.Label
	}
	return xs, ys
}

func freshSeed() int64 {
	for {
		if s := rand.Int63(); s != 0 {
			return s
		}
	}
}

// RMSE is the root mean squared error between equal-length slices.
func RMSE(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	return floats.Distance(pred, actual, 2) / math.Sqrt(float64(len(pred)))
}

// MAE is the mean absolute error between equal-length slices.
func MAE(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	return floats.Distance(pred, actual, 1) / float64(len(pred))
}
