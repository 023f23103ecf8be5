// Package server is the REST serving facade for the persisted artifact.
//
// The loaded bundle is shared read-only across all requests through
// artifact.Handle; request-level failures are isolated per request and never
// terminate the process.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/medcost/internal/artifact"
	pkgerrors "github.com/YuminosukeSato/medcost/pkg/errors"
)

// Version reported by the prediction endpoints.
const Version = "1.0.0"

// BuildServer wires the echo instance: routes, latency logging and the
// mapping from domain errors to HTTP statuses.
func BuildServer(handle *artifact.Handle, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	// All request logging goes through zerolog; echo's own logger stays quiet.
	e.Logger.SetLevel(gommonlog.OFF)

	e.Use(middleware.Recover())

	// Request latency logging.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			logger.Info().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(begin)).
				Msg("request handled")
			return err
		}
	})

	e.HTTPErrorHandler = errorHandler(logger)

	e.GET("/", RootHandler())
	e.GET("/health", HealthHandler(handle))
	e.GET("/model-info", ModelInfoHandler(handle))
	e.POST("/predict", PredictHandler(handle))
	e.POST("/batch_predict", BatchPredictHandler(handle))

	return e
}

// errorPayload is the structured error body returned for failed requests.
type errorPayload struct {
	Message    string                     `json:"message"`
	Violations []pkgerrors.FieldViolation `json:"violations,omitempty"`
}

// errorHandler maps domain errors to HTTP statuses: validation and unknown
// categories are client errors, a missing artifact means the service cannot
// serve, everything else is a 500.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		payload := errorPayload{Message: "internal server error"}

		var validationErr *pkgerrors.ValidationError
		var unknownErr *pkgerrors.UnknownCategoryError
		var missingErr *pkgerrors.ArtifactMissing
		var httpErr *echo.HTTPError

		switch {
		case pkgerrors.As(err, &validationErr):
			status = http.StatusBadRequest
			payload = errorPayload{Message: "validation failed", Violations: validationErr.Violations}
		case pkgerrors.As(err, &unknownErr):
			status = http.StatusBadRequest
			payload = errorPayload{Message: unknownErr.Error()}
		case pkgerrors.As(err, &missingErr):
			status = http.StatusServiceUnavailable
			payload = errorPayload{Message: "model artifact not available"}
		case pkgerrors.As(err, &httpErr):
			status = httpErr.Code
			payload = errorPayload{Message: http.StatusText(status)}
		default:
			logger.Error().Err(err).Msg("unhandled request error")
		}

		if jsonErr := c.JSON(status, payload); jsonErr != nil {
			logger.Error().Err(jsonErr).Msg("failed to write error response")
		}
	}
}
