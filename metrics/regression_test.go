package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: []float64{1, 2, 3},
			yPred: []float64{1, 2, 3},
			want:  0.0,
		},
		{
			name:  "constant offset",
			yTrue: []float64{1, 2, 3, 4},
			yPred: []float64{2, 3, 4, 5},
			want:  1.0,
		},
		{
			name:  "hand computed",
			yTrue: []float64{3, -0.5, 2, 7},
			yPred: []float64{2.5, 0.0, 2, 8},
			want:  0.375,
		},
		{
			name:    "length mismatch",
			yTrue:   []float64{1, 2},
			yPred:   []float64{1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("MSE failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("MSE = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSE(t *testing.T) {
	got, err := RMSE(vec([]float64{0, 0, 0, 0}), vec([]float64{2, 2, 2, 2}))
	if err != nil {
		t.Fatalf("RMSE failed: %v", err)
	}
	if math.Abs(got-2.0) > 1e-10 {
		t.Errorf("RMSE = %v, want 2.0", got)
	}
}

func TestMAE(t *testing.T) {
	got, err := MAE(vec([]float64{3, -0.5, 2, 7}), vec([]float64{2.5, 0.0, 2, 8}))
	if err != nil {
		t.Fatalf("MAE failed: %v", err)
	}
	if math.Abs(got-0.5) > 1e-10 {
		t.Errorf("MAE = %v, want 0.5", got)
	}
}

func TestR2(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
		want  float64
	}{
		{
			name:  "perfect prediction",
			yTrue: []float64{1, 2, 3, 4},
			yPred: []float64{1, 2, 3, 4},
			want:  1.0,
		},
		{
			name:  "mean prediction",
			yTrue: []float64{1, 2, 3, 4},
			yPred: []float64{2.5, 2.5, 2.5, 2.5},
			want:  0.0,
		},
		{
			name:  "sklearn reference",
			yTrue: []float64{3, -0.5, 2, 7},
			yPred: []float64{2.5, 0.0, 2, 8},
			want:  0.9486081370449679,
		},
		{
			name:  "constant target perfectly predicted",
			yTrue: []float64{5, 5, 5},
			yPred: []float64{5, 5, 5},
			want:  1.0,
		},
		{
			name:  "constant target missed",
			yTrue: []float64{5, 5, 5},
			yPred: []float64{4, 5, 6},
			want:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2(vec(tt.yTrue), vec(tt.yPred))
			if err != nil {
				t.Fatalf("R2 failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("R2 = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMAPE(t *testing.T) {
	// |100-110|/100 + |200-180|/200 = 0.1 + 0.1 → 10%
	got, err := MAPE(vec([]float64{100, 200}), vec([]float64{110, 180}))
	if err != nil {
		t.Fatalf("MAPE failed: %v", err)
	}
	if math.Abs(got-10.0) > 1e-10 {
		t.Errorf("MAPE = %v, want 10.0", got)
	}

	// 真値0のサンプルは除外される
	got, err = MAPE(vec([]float64{0, 100}), vec([]float64{50, 110}))
	if err != nil {
		t.Fatalf("MAPE failed: %v", err)
	}
	if math.Abs(got-10.0) > 1e-10 {
		t.Errorf("MAPE with zero actual = %v, want 10.0", got)
	}

	if _, err := MAPE(vec([]float64{0, 0}), vec([]float64{1, 2})); err == nil {
		t.Error("expected error when all true values are zero")
	}
}

func TestAsVector(t *testing.T) {
	v, err := AsVector(mat.NewDense(3, 1, []float64{1, 2, 3}))
	if err != nil {
		t.Fatalf("AsVector failed: %v", err)
	}
	if v.Len() != 3 || v.AtVec(2) != 3 {
		t.Errorf("AsVector = %v", mat.Formatted(v))
	}

	if _, err := AsVector(mat.NewDense(2, 2, nil)); err == nil {
		t.Error("expected error for a non-column matrix")
	}
}

func vec(values []float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}
