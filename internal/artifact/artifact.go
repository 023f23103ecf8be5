// Package artifact owns the deployable (model, encoders, scaler) triple.
//
// The three blobs are independent files but always saved and loaded together
// as one logical unit; a serving process never mixes parts from different
// pipeline runs. Saves go through temp-file rename so a concurrent watcher
// can only ever observe complete files.
package artifact

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/pkg/errors"
	"github.com/YuminosukeSato/medcost/preprocessing"
	"gonum.org/v1/gonum/mat"
)

// File names of the three blobs inside the artifact directory.
const (
	ModelFile    = "model.gob"
	EncodersFile = "encoders.json"
	ScalerFile   = "scaler.json"
)

// Bundle is the loaded artifact: the winning model plus the exact
// preprocessing fitted alongside it. Read-only after load.
type Bundle struct {
	Model model.Regressor

	// Feature layout: numerical columns (scaled) first, then categorical
	// codes, in these orders.
	NumericalColumns   []string
	CategoricalColumns []string

	Encoders map[string]*preprocessing.LabelEncoder
	Scaler   *preprocessing.StandardScaler
}

type encodersFile struct {
	Columns  []string                               `json:"columns"`
	Encoders map[string]*preprocessing.LabelEncoder `json:"encoders"`
}

type scalerFile struct {
	Columns []string                      `json:"columns"`
	Scaler  *preprocessing.StandardScaler `json:"scaler"`
}

// SaveEncoders persists fitted label encoders with their column order.
func SaveEncoders(path string, columns []string, encoders map[string]*preprocessing.LabelEncoder) error {
	return writeJSON(path, encodersFile{Columns: columns, Encoders: encoders})
}

// LoadEncoders reads encoders persisted by SaveEncoders and restores their
// fitted state.
func LoadEncoders(path string) ([]string, map[string]*preprocessing.LabelEncoder, error) {
	var enc encodersFile
	if err := readJSON(path, &enc); err != nil {
		return nil, nil, err
	}
	for column, e := range enc.Encoders {
		if err := e.MarkFitted(); err != nil {
			return nil, nil, errors.Wrapf(err, "artifact: encoder %q", column)
		}
	}
	return enc.Columns, enc.Encoders, nil
}

// SaveScaler persists a fitted scaler with its column order.
func SaveScaler(path string, columns []string, scaler *preprocessing.StandardScaler) error {
	return writeJSON(path, scalerFile{Columns: columns, Scaler: scaler})
}

// LoadScaler reads a scaler persisted by SaveScaler and restores its fitted
// state.
func LoadScaler(path string) ([]string, *preprocessing.StandardScaler, error) {
	var sc scalerFile
	if err := readJSON(path, &sc); err != nil {
		return nil, nil, err
	}
	if err := sc.Scaler.MarkFitted(); err != nil {
		return nil, nil, errors.Wrap(err, "artifact: scaler")
	}
	return sc.Columns, sc.Scaler, nil
}

// Save persists the bundle into dir, creating it if needed.
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "artifact: create directory")
	}

	if err := model.SaveRegressor(b.Model, filepath.Join(dir, ModelFile)); err != nil {
		return err
	}

	if err := SaveEncoders(filepath.Join(dir, EncodersFile), b.CategoricalColumns, b.Encoders); err != nil {
		return err
	}

	return SaveScaler(filepath.Join(dir, ScalerFile), b.NumericalColumns, b.Scaler)
}

// Load reads all three blobs from dir. A missing part yields
// ArtifactMissing; the caller must treat the bundle as unusable unless every
// part loads.
func Load(dir string) (*Bundle, error) {
	for _, part := range []struct{ file, name string }{
		{ModelFile, "model"},
		{EncodersFile, "encoders"},
		{ScalerFile, "scaler"},
	} {
		path := filepath.Join(dir, part.file)
		if _, err := os.Stat(path); err != nil {
			return nil, errors.NewArtifactMissing(path, part.name)
		}
	}

	reg, err := model.LoadRegressor(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, err
	}

	catColumns, encoders, err := LoadEncoders(filepath.Join(dir, EncodersFile))
	if err != nil {
		return nil, err
	}

	numColumns, scaler, err := LoadScaler(filepath.Join(dir, ScalerFile))
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Model:              reg,
		NumericalColumns:   numColumns,
		CategoricalColumns: catColumns,
		Encoders:           encoders,
		Scaler:             scaler,
	}, nil
}

// FeatureVector applies the fitted preprocessing to one raw record and
// returns the encoded, scaled feature vector in training column order.
func (b *Bundle) FeatureVector(rec dataset.Record) ([]float64, error) {
	numeric := make([]float64, len(b.NumericalColumns))
	for i, column := range b.NumericalColumns {
		v, err := dataset.NumericValue(rec, column)
		if err != nil {
			return nil, err
		}
		numeric[i] = v
	}
	scaled, err := b.Scaler.TransformRow(numeric)
	if err != nil {
		return nil, err
	}

	features := make([]float64, 0, len(b.NumericalColumns)+len(b.CategoricalColumns))
	features = append(features, scaled...)

	for _, column := range b.CategoricalColumns {
		v, err := dataset.CategoricalValue(rec, column)
		if err != nil {
			return nil, err
		}
		encoder, ok := b.Encoders[column]
		if !ok {
			return nil, errors.Newf("medcost: no encoder for column %q", column)
		}
		code, err := encoder.TransformOne(v)
		if err != nil {
			return nil, err
		}
		features = append(features, float64(code))
	}

	return features, nil
}

// Predict runs one raw record through the full transform and the model,
// returning the estimated charges. Negative raw predictions clamp to zero.
func (b *Bundle) Predict(rec dataset.Record) (float64, error) {
	features, err := b.FeatureVector(rec)
	if err != nil {
		return 0, err
	}

	X := mat.NewDense(1, len(features), features)
	pred, err := b.Model.Predict(X)
	if err != nil {
		return 0, err
	}

	cost := pred.At(0, 0)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, errors.NewValueError("Bundle.Predict", "model produced non-finite prediction")
	}
	if cost < 0 {
		cost = 0
	}
	return cost, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "artifact: marshal %s", path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "artifact: write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "artifact: rename %s", path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "artifact: read %s", path)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "artifact: parse %s", path)
}
