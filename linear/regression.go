// Package linear は線形回帰モデルを提供します。
package linear

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/medcost/core/model"
	"github.com/YuminosukeSato/medcost/metrics"
	"github.com/YuminosukeSato/medcost/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func init() {
	model.RegisterRegressor("linear_regression", func() model.Regressor {
		return NewLinearRegression()
	})
}

// LinearRegression は最小二乗法による線形回帰モデル
//
// 学習はQR分解による最小二乗解を使用する。正規方程式の明示的な
// 逆行列計算よりも数値的に安定する。
// 永続化のため、学習済み状態はプレーンなGo型のみで保持する。
type LinearRegression struct {
	model.BaseEstimator

	// Coef は各特徴量の係数
	Coef []float64
	// Intercept は切片
	Intercept float64
	// NFeatures は特徴量の数
	NFeatures int
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Name はトラッキングとメトリクス記録で使う識別子を返す
func (lr *LinearRegression) Name() string { return "linear_regression" }

// Params はハイパーパラメータを返す（線形回帰にはない）
func (lr *LinearRegression) Params() map[string]interface{} {
	return map[string]interface{}{}
}

// Fit はモデルを訓練データで学習させる
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	// 入力の検証
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewValueError("LinearRegression.Fit", "empty data")
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if r <= c {
		return errors.NewValueError("LinearRegression.Fit",
			fmt.Sprintf("need more samples (%d) than features (%d)", r, c))
	}

	lr.NFeatures = c

	// 切片項のために X に 1 の列を追加
	// X_with_intercept = [1, X]
	XWithIntercept := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		XWithIntercept.Set(i, 0, 1.0)
		for j := 0; j < c; j++ {
			XWithIntercept.Set(i, j+1, X.At(i, j))
		}
	}

	// QR分解で最小二乗解を求める
	var qr mat.QR
	qr.Factorize(XWithIntercept)

	yDense := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		yDense.Set(i, 0, y.At(i, 0))
	}

	var solution mat.Dense
	if err := qr.SolveTo(&solution, false, yDense); err != nil {
		return errors.Wrap(err, "medcost: LinearRegression.Fit: least squares solve failed")
	}

	lr.Intercept = solution.At(0, 0)
	lr.Coef = make([]float64, c)
	for j := 0; j < c; j++ {
		lr.Coef[j] = solution.At(j+1, 0)
	}

	// 解に非有限値が含まれる場合は学習失敗として扱う
	if !math.IsInf(lr.Intercept, 0) && !math.IsNaN(lr.Intercept) {
		for _, w := range lr.Coef {
			if math.IsInf(w, 0) || math.IsNaN(w) {
				return errors.NewValueError("LinearRegression.Fit", "non-finite coefficients")
			}
		}
	} else {
		return errors.NewValueError("LinearRegression.Fit", "non-finite intercept")
	}

	lr.SetFitted()
	return nil
}

// Predict は入力に対する予測値を返す
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	result := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += lr.Coef[j] * X.At(i, j)
		}
		result.Set(i, 0, pred)
	}

	return result, nil
}

// Score はテストデータに対する決定係数R²を返す
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	yVec, err := metrics.AsVector(y)
	if err != nil {
		return 0, err
	}
	predVec, err := metrics.AsVector(pred)
	if err != nil {
		return 0, err
	}

	return metrics.R2(yVec, predVec)
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	if !lr.IsFitted() {
		return "LinearRegression()"
	}
	return fmt.Sprintf("LinearRegression(n_features=%d)", lr.NFeatures)
}
