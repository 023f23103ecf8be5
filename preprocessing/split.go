package preprocessing

import (
	"math/rand"

	"github.com/YuminosukeSato/medcost/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TrainTestSplit はn個のサンプルを訓練／テストの添字集合に分割する。
// 固定シードでのFisher–Yatesシャッフルを使うため、同じnとシードなら
// 分割は毎回同一になる（再現性の保証）。
//
// testSize は (0, 1) の割合。テスト側のサンプル数は round(n*testSize) で、
// 最低1サンプルは両側に残す。
func TrainTestSplit(n int, testSize float64, seed int64) (trainIdx, testIdx []int, err error) {
	if n < 2 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "need at least 2 samples")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "testSize must be in (0, 1)")
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	nTest := int(float64(n)*testSize + 0.5)
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}

	testIdx = perm[:nTest]
	trainIdx = perm[nTest:]
	return trainIdx, testIdx, nil
}

// SelectRows は添字集合で指定した行だけからなる新しい行列を返す
func SelectRows(X *mat.Dense, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, ri := range idx {
		out.SetRow(i, X.RawRowView(ri))
	}
	return out
}

// SelectVec は添字集合で指定した要素だけからなる新しいベクトルを返す
func SelectVec(y *mat.VecDense, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, ri := range idx {
		out.SetVec(i, y.AtVec(ri))
	}
	return out
}
