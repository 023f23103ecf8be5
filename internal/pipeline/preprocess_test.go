package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medcost/internal/config"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	"github.com/YuminosukeSato/medcost/pkg/log"
)

// syntheticRecords builds a deterministic dataset large enough for a split.
func syntheticRecords(n int) []dataset.Record {
	sexes := []string{"female", "male"}
	smokers := []string{"no", "yes"}
	regions := []string{"northeast", "northwest", "southeast", "southwest"}

	records := make([]dataset.Record, n)
	for i := 0; i < n; i++ {
		records[i] = dataset.Record{
			Age:      18 + i%50,
			Sex:      sexes[i%2],
			BMI:      20.0 + float64(i%20),
			Children: i % 4,
			Smoker:   smokers[i%2],
			Region:   regions[i%4],
			Charges:  1000.0 + float64(i)*137.0,
		}
	}
	return records
}

func preprocessConfig() *config.Config {
	cfg := config.Default()
	cfg.Data.ProcessedDir = "" // no side effects unless a test opts in
	return cfg
}

func TestPreprocessShapesAndOrder(t *testing.T) {
	cfg := preprocessConfig()
	records := syntheticRecords(100)

	pre, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)

	rTrain, cTrain := pre.XTrain.Dims()
	rTest, cTest := pre.XTest.Dims()
	assert.Equal(t, 80, rTrain)
	assert.Equal(t, 20, rTest)
	assert.Equal(t, 6, cTrain)
	assert.Equal(t, 6, cTest)
	assert.Equal(t, 80, pre.YTrain.Len())
	assert.Equal(t, 20, pre.YTest.Len())

	// 特徴量の並びは数値列が先、カテゴリ列が後
	assert.Equal(t, []string{"age", "bmi", "children", "sex", "smoker", "region"}, pre.FeatureNames)
}

func TestPreprocessScalerFitOnTrainOnly(t *testing.T) {
	cfg := preprocessConfig()
	records := syntheticRecords(100)

	pre, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)

	// 訓練側の数値列は平均~0、分散~1
	rTrain, _ := pre.XTrain.Dims()
	for j := 0; j < len(cfg.Features.Numerical); j++ {
		var sum float64
		for i := 0; i < rTrain; i++ {
			sum += pre.XTrain.At(i, j)
		}
		mean := sum / float64(rTrain)
		assert.InDelta(t, 0.0, mean, 1e-9, "train column %d mean", j)

		var sumSq float64
		for i := 0; i < rTrain; i++ {
			d := pre.XTrain.At(i, j) - mean
			sumSq += d * d
		}
		assert.InDelta(t, 1.0, sumSq/float64(rTrain), 1e-9, "train column %d variance", j)
	}

	// テスト側は訓練統計量で変換されるため、平均はぴったり0にはならない
	rTest, _ := pre.XTest.Dims()
	exactlyZero := true
	for j := 0; j < len(cfg.Features.Numerical); j++ {
		var sum float64
		for i := 0; i < rTest; i++ {
			sum += pre.XTest.At(i, j)
		}
		if math.Abs(sum/float64(rTest)) > 1e-12 {
			exactlyZero = false
		}
	}
	assert.False(t, exactlyZero, "test partition looks refitted")
}

func TestPreprocessReproducibleSplit(t *testing.T) {
	cfg := preprocessConfig()
	records := syntheticRecords(60)

	first, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)
	second, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)

	assert.Equal(t, first.TrainIdx, second.TrainIdx)
	assert.Equal(t, first.TestIdx, second.TestIdx)
	assert.True(t, mat.EqualApprox(first.XTrain, second.XTrain, 1e-15))

	cfg.Data.RandomState = 7
	third, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)
	assert.NotEqual(t, first.TestIdx, third.TestIdx)
}

func TestPreprocessEncodesCategoricals(t *testing.T) {
	cfg := preprocessConfig()
	records := syntheticRecords(50)

	pre, err := Preprocess(cfg, records, log.Nop())
	require.NoError(t, err)

	require.Contains(t, pre.Encoders, "smoker")
	assert.Equal(t, []string{"no", "yes"}, pre.Encoders["smoker"].Classes)
	require.Contains(t, pre.Encoders, "region")
	assert.Equal(t, []string{"northeast", "northwest", "southeast", "southwest"},
		pre.Encoders["region"].Classes)

	// カテゴリ列の符号は [0, n_classes) に収まる
	smokerCol := len(cfg.Features.Numerical) + 1
	rTrain, _ := pre.XTrain.Dims()
	for i := 0; i < rTrain; i++ {
		code := pre.XTrain.At(i, smokerCol)
		assert.True(t, code == 0 || code == 1, "smoker code %v at row %d", code, i)
	}
}

func TestPreprocessPersistsProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := preprocessConfig()
	cfg.Data.ProcessedDir = dir

	_, err := Preprocess(cfg, syntheticRecords(40), log.Nop())
	require.NoError(t, err)

	for _, name := range []string{
		"X_train.csv", "X_test.csv", "y_train.csv", "y_test.csv",
		"encoders.json", "scaler.json",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing %s", name)
	}
}

func TestPreprocessEmptyRecords(t *testing.T) {
	_, err := Preprocess(preprocessConfig(), nil, log.Nop())
	require.Error(t, err)
}

func TestTrainFitsAllCandidates(t *testing.T) {
	cfg := preprocessConfig()
	cfg.Model.RandomForest.NEstimators = 5
	cfg.Model.GradientBoosting.NEstimators = 10

	pre, err := Preprocess(cfg, syntheticRecords(80), log.Nop())
	require.NoError(t, err)

	candidates, err := Train(context.Background(), cfg, nil, pre, log.Nop())
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	names := make([]string, len(candidates))
	for i, cand := range candidates {
		names[i] = cand.Model.Name()
		assert.NoError(t, cand.Err, "candidate %s", cand.Model.Name())
	}
	assert.Equal(t, []string{"linear_regression", "random_forest", "gradient_boosting"}, names)
}

func TestBuildCandidatesUnknownAlgorithm(t *testing.T) {
	cfg := preprocessConfig()
	cfg.Model.Algorithms = []string{"linear_regression", "svm"}

	_, err := BuildCandidates(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svm")
}

func TestScoreOnRejectsNonFinite(t *testing.T) {
	m := &fixedModel{name: "bad", preds: []float64{math.NaN()}}
	_, err := scoreOn(m, mat.NewDense(2, 1, []float64{1, 2}), mat.NewVecDense(2, []float64{1, 2}))
	require.Error(t, err)
}
