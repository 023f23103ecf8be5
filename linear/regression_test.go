package linear

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLinearRegressionExactRecovery(t *testing.T) {
	// ノイズなしの y = 2x₁ - 3x₂ + 5 を完全に復元できる
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
		2, 1,
		3, 2,
	})
	y := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		y.Set(i, 0, 2*X.At(i, 0)-3*X.At(i, 1)+5)
	}

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if math.Abs(lr.Intercept-5.0) > 1e-8 {
		t.Errorf("Intercept = %v, want 5.0", lr.Intercept)
	}
	wantCoef := []float64{2.0, -3.0}
	for j, w := range wantCoef {
		if math.Abs(lr.Coef[j]-w) > 1e-8 {
			t.Errorf("Coef[%d] = %v, want %v", j, lr.Coef[j], w)
		}
	}

	// ノイズなしデータなら R² = 1
	score, err := lr.Score(X, y)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score-1.0) > 1e-10 {
		t.Errorf("Score = %v, want 1.0", score)
	}
}

func TestLinearRegressionPredict(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9}) // y = 2x + 1

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{10, -1}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(pred.At(0, 0)-21.0) > 1e-8 {
		t.Errorf("pred[0] = %v, want 21.0", pred.At(0, 0))
	}
	if math.Abs(pred.At(1, 0)-(-1.0)) > 1e-8 {
		t.Errorf("pred[1] = %v, want -1.0", pred.At(1, 0))
	}
}

func TestLinearRegressionErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "predict before fit",
			run: func() error {
				_, err := NewLinearRegression().Predict(mat.NewDense(1, 1, []float64{1}))
				return err
			},
		},
		{
			name: "empty data",
			run: func() error {
				return NewLinearRegression().Fit(&mat.Dense{}, &mat.Dense{})
			},
		},
		{
			name: "row mismatch",
			run: func() error {
				return NewLinearRegression().Fit(
					mat.NewDense(3, 1, []float64{1, 2, 3}),
					mat.NewDense(2, 1, []float64{1, 2}),
				)
			},
		},
		{
			name: "more features than samples",
			run: func() error {
				return NewLinearRegression().Fit(
					mat.NewDense(2, 3, nil),
					mat.NewDense(2, 1, nil),
				)
			},
		},
		{
			name: "feature count mismatch at predict",
			run: func() error {
				lr := NewLinearRegression()
				if err := lr.Fit(
					mat.NewDense(4, 1, []float64{1, 2, 3, 4}),
					mat.NewDense(4, 1, []float64{1, 2, 3, 4}),
				); err != nil {
					return err
				}
				_, err := lr.Predict(mat.NewDense(1, 2, []float64{1, 2}))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLinearRegressionNameAndParams(t *testing.T) {
	lr := NewLinearRegression()
	if lr.Name() != "linear_regression" {
		t.Errorf("Name = %q", lr.Name())
	}
	if len(lr.Params()) != 0 {
		t.Errorf("Params = %v, want empty", lr.Params())
	}
}
