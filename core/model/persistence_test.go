package model_test

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/ensemble"
	"github.com/YuminosukeSato/medcost/linear"
)

func TestSaveLoadLinearRegression(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := linear.NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := model.SaveRegressor(lr, path); err != nil {
		t.Fatalf("SaveRegressor failed: %v", err)
	}

	loaded, err := model.LoadRegressor(path)
	if err != nil {
		t.Fatalf("LoadRegressor failed: %v", err)
	}

	// 復元後は学習済みで、元と同じ予測を返す
	if loaded.Name() != "linear_regression" {
		t.Errorf("Name = %q, want linear_regression", loaded.Name())
	}
	pred, err := loaded.Predict(mat.NewDense(1, 1, []float64{10}))
	if err != nil {
		t.Fatalf("Predict after load failed: %v", err)
	}
	if math.Abs(pred.At(0, 0)-21.0) > 1e-8 {
		t.Errorf("pred = %v, want 21.0", pred.At(0, 0))
	}
}

func TestSaveLoadGradientBoosting(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 7, 8, 9})
	y := mat.NewDense(6, 1, []float64{10, 10, 10, 50, 50, 50})

	gb := ensemble.NewGradientBoostingRegressor().WithNEstimators(10)
	if err := gb.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	want, err := gb.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := model.SaveRegressor(gb, path); err != nil {
		t.Fatalf("SaveRegressor failed: %v", err)
	}
	loaded, err := model.LoadRegressor(path)
	if err != nil {
		t.Fatalf("LoadRegressor failed: %v", err)
	}

	got, err := loaded.Predict(X)
	if err != nil {
		t.Fatalf("Predict after load failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		if math.Abs(got.At(i, 0)-want.At(i, 0)) > 1e-12 {
			t.Errorf("pred[%d] = %v, want %v", i, got.At(i, 0), want.At(i, 0))
		}
	}
}

func TestLoadUnknownKind(t *testing.T) {
	if _, err := model.LoadRegressor(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Error("expected error for missing file")
	}
}
