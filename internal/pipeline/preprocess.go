// Package pipeline sequences the three batch stages: Preprocess fits the
// encoders, scaler and split; Train fits every candidate on the identical
// training matrix; Select scores the candidates on the held-out split and
// persists the winner. The stages run strictly in order and each consumes
// only its predecessor's output.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/pkg/errors"
	"github.com/YuminosukeSato/medcost/preprocessing"
)

// PreprocessResult is the Preprocessor's output: the encoded, scaled splits
// plus the fitted transforms, reused verbatim by Train, Select and the
// serving facade.
type PreprocessResult struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain *mat.VecDense
	YTest  *mat.VecDense

	FeatureNames []string
	Encoders     map[string]*preprocessing.LabelEncoder
	Scaler       *preprocessing.StandardScaler

	TrainIdx []int
	TestIdx  []int
}

// Preprocess encodes the categorical columns, splits with the configured
// seed, and fits the scaler on the training partition only. The scaler's
// statistics are never refitted on test data.
func Preprocess(cfg *config.Config, records []dataset.Record, logger zerolog.Logger) (*PreprocessResult, error) {
	if len(records) == 0 {
		return nil, errors.NewDataError(cfg.Data.RawPath, 0, "", "no records to preprocess")
	}

	numCols := cfg.Features.Numerical
	catCols := cfg.Features.Categorical
	n := len(records)

	// Encoders are fitted on the full categorical vocabulary so that train
	// and test rows map through identical codes.
	encoders := make(map[string]*preprocessing.LabelEncoder, len(catCols))
	for _, column := range catCols {
		values := make([]string, n)
		for i, rec := range records {
			v, err := dataset.CategoricalValue(rec, column)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		enc := preprocessing.NewLabelEncoder(column)
		if err := enc.Fit(values); err != nil {
			return nil, err
		}
		encoders[column] = enc
	}

	// Full unscaled feature matrix: numerical columns then categorical codes.
	nFeatures := len(numCols) + len(catCols)
	X := mat.NewDense(n, nFeatures, nil)
	y := mat.NewVecDense(n, nil)

	for i, rec := range records {
		for j, column := range numCols {
			v, err := dataset.NumericValue(rec, column)
			if err != nil {
				return nil, err
			}
			X.Set(i, j, v)
		}
		for j, column := range catCols {
			v, err := dataset.CategoricalValue(rec, column)
			if err != nil {
				return nil, err
			}
			code, err := encoders[column].TransformOne(v)
			if err != nil {
				return nil, err
			}
			X.Set(i, len(numCols)+j, float64(code))
		}
		target, err := dataset.NumericValue(rec, cfg.Features.Target)
		if err != nil {
			return nil, err
		}
		y.SetVec(i, target)
	}

	trainIdx, testIdx, err := preprocessing.TrainTestSplit(n, cfg.Data.TestSize, cfg.Data.RandomState)
	if err != nil {
		return nil, err
	}

	XTrain := preprocessing.SelectRows(X, trainIdx)
	XTest := preprocessing.SelectRows(X, testIdx)
	YTrain := preprocessing.SelectVec(y, trainIdx)
	YTest := preprocessing.SelectVec(y, testIdx)

	// Scale the numerical columns with statistics from the training
	// partition only.
	scaler := preprocessing.NewStandardScaler()
	if len(numCols) > 0 {
		if err := scaler.Fit(columnSlice(XTrain, 0, len(numCols))); err != nil {
			return nil, err
		}
		if err := applyScaler(scaler, XTrain, len(numCols)); err != nil {
			return nil, err
		}
		if err := applyScaler(scaler, XTest, len(numCols)); err != nil {
			return nil, err
		}
	}

	featureNames := append(append([]string{}, numCols...), catCols...)

	result := &PreprocessResult{
		XTrain:       XTrain,
		XTest:        XTest,
		YTrain:       YTrain,
		YTest:        YTest,
		FeatureNames: featureNames,
		Encoders:     encoders,
		Scaler:       scaler,
		TrainIdx:     trainIdx,
		TestIdx:      testIdx,
	}

	if cfg.Data.ProcessedDir != "" {
		if err := persistProcessed(cfg, result); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int("train_samples", len(trainIdx)).
		Int("test_samples", len(testIdx)).
		Int("features", nFeatures).
		Int64("seed", cfg.Data.RandomState).
		Msg("preprocessing completed")

	return result, nil
}

// columnSlice copies columns [from, to) into a new matrix.
func columnSlice(X *mat.Dense, from, to int) *mat.Dense {
	r, _ := X.Dims()
	out := mat.NewDense(r, to-from, nil)
	for i := 0; i < r; i++ {
		for j := from; j < to; j++ {
			out.Set(i, j-from, X.At(i, j))
		}
	}
	return out
}

// applyScaler transforms the first nNum columns of X in place using the
// already-fitted scaler.
func applyScaler(scaler *preprocessing.StandardScaler, X *mat.Dense, nNum int) error {
	scaled, err := scaler.Transform(columnSlice(X, 0, nNum))
	if err != nil {
		return err
	}
	r, _ := X.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < nNum; j++ {
			X.Set(i, j, scaled.At(i, j))
		}
	}
	return nil
}

// persistProcessed writes the split matrices and the fitted transforms so a
// later stage (or an operator) can inspect them.
func persistProcessed(cfg *config.Config, res *PreprocessResult) error {
	dir := cfg.Data.ProcessedDir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "pipeline: create processed dir")
	}

	writes := []struct {
		file string
		fn   func(path string) error
	}{
		{"X_train.csv", func(p string) error { return writeMatrixCSV(p, res.XTrain, res.FeatureNames) }},
		{"X_test.csv", func(p string) error { return writeMatrixCSV(p, res.XTest, res.FeatureNames) }},
		{"y_train.csv", func(p string) error { return writeVecCSV(p, res.YTrain, cfg.Features.Target) }},
		{"y_test.csv", func(p string) error { return writeVecCSV(p, res.YTest, cfg.Features.Target) }},
		{artifact.EncodersFile, func(p string) error {
			return artifact.SaveEncoders(p, cfg.Features.Categorical, res.Encoders)
		}},
		{artifact.ScalerFile, func(p string) error {
			return artifact.SaveScaler(p, cfg.Features.Numerical, res.Scaler)
		}},
	}
	for _, w := range writes {
		if err := w.fn(filepath.Join(dir, w.file)); err != nil {
			return err
		}
	}
	return nil
}

func writeMatrixCSV(path string, X *mat.Dense, header []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "pipeline: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "pipeline: write header")
	}

	r, c := X.Dims()
	row := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = strconv.FormatFloat(X.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return errors.Wrapf(err, "pipeline: write row %d", i)
		}
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "pipeline: flush %s", path)
}

func writeVecCSV(path string, y *mat.VecDense, header string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "pipeline: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{header}); err != nil {
		return errors.Wrap(err, "pipeline: write header")
	}
	for i := 0; i < y.Len(); i++ {
		if err := w.Write([]string{fmt.Sprintf("%g", y.AtVec(i))}); err != nil {
			return errors.Wrapf(err, "pipeline: write row %d", i)
		}
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "pipeline: flush %s", path)
}
