package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/linear"
	pkgerrors "github.com/YuminosukeSato/medcost/pkg/errors"
	"github.com/YuminosukeSato/medcost/pkg/log"
	"github.com/YuminosukeSato/medcost/preprocessing"
)

// testBundle builds a fitted bundle with a strong positive smoker
// coefficient, matching the direction the real model learns.
func testBundle(t *testing.T) *artifact.Bundle {
	t.Helper()

	lr := linear.NewLinearRegression()
	lr.Coef = []float64{3000, 1500, 500, 100, 20000, 50}
	lr.Intercept = 9000
	lr.NFeatures = 6
	lr.SetFitted()

	scaler := &preprocessing.StandardScaler{
		Mean:      []float64{39, 30, 1},
		Scale:     []float64{14, 6, 1.2},
		NFeatures: 3,
	}
	require.NoError(t, scaler.MarkFitted())

	encoders := map[string]*preprocessing.LabelEncoder{}
	for column, vocab := range map[string][]string{
		"sex":    {"female", "male"},
		"smoker": {"no", "yes"},
		"region": {"northeast", "northwest", "southeast", "southwest"},
	} {
		enc := preprocessing.NewLabelEncoder(column)
		require.NoError(t, enc.Fit(vocab))
		encoders[column] = enc
	}

	return &artifact.Bundle{
		Model:              lr,
		NumericalColumns:   []string{"age", "bmi", "children"},
		CategoricalColumns: []string{"sex", "smoker", "region"},
		Encoders:           encoders,
		Scaler:             scaler,
	}
}

func testServer(t *testing.T) (*artifact.Handle, http.Handler) {
	t.Helper()
	handle := artifact.NewHandle(testBundle(t))
	return handle, BuildServer(handle, log.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"age":35,"sex":"male","bmi":28.5,"children":2,"smoker":"no","region":"northwest"}`

func TestRootEndpoint(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, Version, body["version"])
}

func TestHealthEndpoint(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, true, body["scaler_loaded"])
	assert.Equal(t, true, body["encoders_loaded"])
}

func TestModelInfoEndpoint(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodGet, "/model-info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ModelType   string              `json:"model_type"`
		Features    map[string][]string `json:"features"`
		ValidValues map[string][]string `json:"valid_values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "linear_regression", body.ModelType)
	assert.Equal(t, []string{"age", "bmi", "children"}, body.Features["numerical"])
	assert.Equal(t, []string{"no", "yes"}, body.ValidValues["smoker"])
}

func TestPredictEndpoint(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodPost, "/predict", validBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.PredictedCost, 0.0)
	assert.Equal(t, Version, resp.ModelVersion)
}

func TestPredictSmokerCostsMore(t *testing.T) {
	_, h := testServer(t)

	predict := func(smoker string) float64 {
		body := fmt.Sprintf(`{"age":35,"sex":"male","bmi":28.5,"children":2,"smoker":%q,"region":"northwest"}`, smoker)
		rec := doJSON(t, h, http.MethodPost, "/predict", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp PredictResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.PredictedCost
	}

	// 喫煙以外が同一なら喫煙者の予測コストが高い
	assert.Greater(t, predict("yes"), predict("no"))
}

func TestPredictValidationAggregatesViolations(t *testing.T) {
	_, h := testServer(t)

	body := `{"age":150,"sex":"male","bmi":28.5,"children":2,"smoker":"sometimes","region":"northwest"}`
	rec := doJSON(t, h, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var payload struct {
		Message    string                     `json:"message"`
		Violations []pkgerrors.FieldViolation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "validation failed", payload.Message)
	require.Len(t, payload.Violations, 2)

	fields := []string{payload.Violations[0].Field, payload.Violations[1].Field}
	assert.Contains(t, fields, "age")
	assert.Contains(t, fields, "smoker")
}

func TestPredictRangeBounds(t *testing.T) {
	_, h := testServer(t)

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"age at lower bound", `{"age":18,"sex":"male","bmi":28.5,"children":0,"smoker":"no","region":"northwest"}`, true},
		{"age at upper bound", `{"age":100,"sex":"male","bmi":28.5,"children":0,"smoker":"no","region":"northwest"}`, true},
		{"age below bound", `{"age":17,"sex":"male","bmi":28.5,"children":0,"smoker":"no","region":"northwest"}`, false},
		{"bmi too high", `{"age":30,"sex":"male","bmi":61,"children":0,"smoker":"no","region":"northwest"}`, false},
		{"children negative", `{"age":30,"sex":"male","bmi":28.5,"children":-1,"smoker":"no","region":"northwest"}`, false},
		{"children too many", `{"age":30,"sex":"male","bmi":28.5,"children":11,"smoker":"no","region":"northwest"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/predict", tt.body)
			if tt.ok {
				assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			} else {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestPredictMalformedJSON(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodPost, "/predict", `{"age":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchPredictOrderAndCount(t *testing.T) {
	_, h := testServer(t)

	body := `[
		{"age":35,"sex":"male","bmi":28.5,"children":2,"smoker":"no","region":"northwest"},
		{"age":150,"sex":"male","bmi":28.5,"children":2,"smoker":"no","region":"northwest"},
		{"age":52,"sex":"female","bmi":31.0,"children":0,"smoker":"yes","region":"southeast"}
	]`
	rec := doJSON(t, h, http.MethodPost, "/batch_predict", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// 予測は入力順のまま。失敗レコードの位置はnullで保持される
	require.Len(t, resp.Predictions, 3)
	assert.NotNil(t, resp.Predictions[0])
	assert.Nil(t, resp.Predictions[1])
	assert.NotNil(t, resp.Predictions[2])

	// Countは成功件数
	assert.Equal(t, 2, resp.Count)

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Contains(t, resp.Errors[0].Error, "age")
}

func TestBatchPredictAllValid(t *testing.T) {
	_, h := testServer(t)

	body := `[` + validBody + `,` + validBody + `]`
	rec := doJSON(t, h, http.MethodPost, "/batch_predict", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Empty(t, resp.Errors)
}

func TestBatchPredictEmpty(t *testing.T) {
	_, h := testServer(t)
	rec := doJSON(t, h, http.MethodPost, "/batch_predict", `[]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Predictions)
}

func TestValidateDirectly(t *testing.T) {
	bundle := testBundle(t)

	err := validate(PredictRequest{
		Age: 35, Sex: "male", BMI: 28.5, Children: 2, Smoker: "no", Region: "northwest",
	}, bundle)
	assert.NoError(t, err)

	err = validate(PredictRequest{
		Age: 17, Sex: "other", BMI: 5, Children: 20, Smoker: "maybe", Region: "mars",
	}, bundle)
	require.Error(t, err)

	var validationErr *pkgerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Violations, 6)
}
