package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	"github.com/YuminosukeSato/medcost/internal/dataset"
	pkgerrors "github.com/YuminosukeSato/medcost/pkg/errors"
)

// Domain constraints for inference requests.
const (
	MinAge      = 18
	MaxAge      = 100
	MinBMI      = 10.0
	MaxBMI      = 60.0
	MinChildren = 0
	MaxChildren = 10
)

// PredictRequest is one raw inference record.
type PredictRequest struct {
	Age      int     `json:"age"`
	Sex      string  `json:"sex"`
	BMI      float64 `json:"bmi"`
	Children int     `json:"children"`
	Smoker   string  `json:"smoker"`
	Region   string  `json:"region"`
}

// Record converts the request to a dataset record (target unset).
func (r PredictRequest) Record() dataset.Record {
	return dataset.Record{
		Age:      r.Age,
		Sex:      r.Sex,
		BMI:      r.BMI,
		Children: r.Children,
		Smoker:   r.Smoker,
		Region:   r.Region,
	}
}

// PredictResponse is the single-record prediction result.
type PredictResponse struct {
	PredictedCost float64 `json:"predicted_cost"`
	ModelVersion  string  `json:"model_version"`
}

// BatchError reports one failed record of a batch by its input index.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResponse keeps predictions in input order; failed records hold null
// and are described in Errors. Count is the number of successful
// predictions.
type BatchResponse struct {
	Predictions []*float64   `json:"predictions"`
	Count       int          `json:"count"`
	Errors      []BatchError `json:"errors,omitempty"`
}

// validate checks every field against its declared domain and the fitted
// categorical vocabulary, aggregating all violations instead of stopping at
// the first.
func validate(req PredictRequest, bundle *artifact.Bundle) error {
	var violations []pkgerrors.FieldViolation

	add := func(field, reason string) {
		violations = append(violations, pkgerrors.FieldViolation{Field: field, Reason: reason})
	}

	if req.Age < MinAge || req.Age > MaxAge {
		add("age", fmt.Sprintf("must be between %d and %d, got %d", MinAge, MaxAge, req.Age))
	}
	if req.BMI < MinBMI || req.BMI > MaxBMI {
		add("bmi", fmt.Sprintf("must be between %g and %g, got %g", MinBMI, MaxBMI, req.BMI))
	}
	if req.Children < MinChildren || req.Children > MaxChildren {
		add("children", fmt.Sprintf("must be between %d and %d, got %d", MinChildren, MaxChildren, req.Children))
	}

	rec := req.Record()
	for _, column := range bundle.CategoricalColumns {
		value, err := dataset.CategoricalValue(rec, column)
		if err != nil {
			add(column, err.Error())
			continue
		}
		encoder, ok := bundle.Encoders[column]
		if !ok {
			add(column, "no fitted encoder for column")
			continue
		}
		if _, err := encoder.TransformOne(value); err != nil {
			add(column, fmt.Sprintf("must be one of %v, got %q", encoder.Classes, value))
		}
	}

	if len(violations) > 0 {
		return pkgerrors.NewValidationError(violations)
	}
	return nil
}

// RootHandler serves the service banner.
func RootHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"message": "Medical Insurance Cost Prediction API",
			"version": Version,
			"endpoints": map[string]string{
				"predict":       "/predict",
				"batch_predict": "/batch_predict",
				"model_info":    "/model-info",
				"health":        "/health",
			},
		})
	}
}

// HealthHandler reports liveness and which artifact parts are loaded.
func HealthHandler(handle *artifact.Handle) echo.HandlerFunc {
	return func(c echo.Context) error {
		bundle := handle.Get()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":          "healthy",
			"model_loaded":    bundle != nil && bundle.Model != nil,
			"scaler_loaded":   bundle != nil && bundle.Scaler != nil,
			"encoders_loaded": bundle != nil && len(bundle.Encoders) > 0,
		})
	}
}

// ModelInfoHandler describes the loaded model and the valid input domain.
func ModelInfoHandler(handle *artifact.Handle) echo.HandlerFunc {
	return func(c echo.Context) error {
		bundle := handle.Get()
		if bundle == nil {
			return pkgerrors.NewArtifactMissing("", "model")
		}

		validValues := map[string][]string{}
		for column, encoder := range bundle.Encoders {
			validValues[column] = encoder.Classes
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"model_type": bundle.Model.Name(),
			"features": map[string][]string{
				"numerical":   bundle.NumericalColumns,
				"categorical": bundle.CategoricalColumns,
			},
			"valid_values": validValues,
		})
	}
}

// PredictHandler serves single-record predictions.
func PredictHandler(handle *artifact.Handle) echo.HandlerFunc {
	return func(c echo.Context) error {
		bundle := handle.Get()
		if bundle == nil {
			return pkgerrors.NewArtifactMissing("", "model")
		}

		var req PredictRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can not understand the requested json")
		}

		if err := validate(req, bundle); err != nil {
			return err
		}

		cost, err := bundle.Predict(req.Record())
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, PredictResponse{
			PredictedCost: cost,
			ModelVersion:  Version,
		})
	}
}

// BatchPredictHandler applies the single-record contract independently to
// each record, preserving input order. One invalid record never fails the
// whole batch.
func BatchPredictHandler(handle *artifact.Handle) echo.HandlerFunc {
	return func(c echo.Context) error {
		bundle := handle.Get()
		if bundle == nil {
			return pkgerrors.NewArtifactMissing("", "model")
		}

		var reqs []PredictRequest
		if err := c.Bind(&reqs); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can not understand the requested json")
		}

		resp := BatchResponse{
			Predictions: make([]*float64, len(reqs)),
		}

		for i, req := range reqs {
			if err := validate(req, bundle); err != nil {
				resp.Errors = append(resp.Errors, BatchError{Index: i, Error: err.Error()})
				continue
			}
			cost, err := bundle.Predict(req.Record())
			if err != nil {
				resp.Errors = append(resp.Errors, BatchError{Index: i, Error: err.Error()})
				continue
			}
			v := cost
			resp.Predictions[i] = &v
			resp.Count++
		}

		return c.JSON(http.StatusOK, resp)
	}
}
