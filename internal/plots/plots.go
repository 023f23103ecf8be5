// Package plots renders the Selector's evaluation charts with gonum/plot.
// The charts are a reporting side effect only; nothing downstream reads
// them.
package plots

import (
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// ActualVsPredicted renders a scatter of held-out targets against the
// model's predictions with the y=x reference line.
func ActualVsPredicted(actual, predicted *mat.VecDense, path string) error {
	if actual.Len() != predicted.Len() {
		return errors.NewDimensionError("plots.ActualVsPredicted", actual.Len(), predicted.Len(), 0)
	}

	p := plot.New()
	p.Title.Text = "Actual vs Predicted Insurance Charges"
	p.X.Label.Text = "Actual Charges"
	p.Y.Label.Text = "Predicted Charges"

	pts := make(plotter.XYs, actual.Len())
	lo, hi := actual.AtVec(0), actual.AtVec(0)
	for i := range pts {
		a := actual.AtVec(i)
		pts[i].X = a
		pts[i].Y = predicted.AtVec(i)
		if a < lo {
			lo = a
		}
		if a > hi {
			hi = a
		}
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "plots: build scatter")
	}
	p.Add(scatter)

	ideal := plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}}
	line, err := plotter.NewLine(ideal)
	if err != nil {
		return errors.Wrap(err, "plots: build reference line")
	}
	p.Add(line)

	return save(p, path)
}

// Residuals renders predictions against their residuals.
func Residuals(actual, predicted *mat.VecDense, path string) error {
	if actual.Len() != predicted.Len() {
		return errors.NewDimensionError("plots.Residuals", actual.Len(), predicted.Len(), 0)
	}

	p := plot.New()
	p.Title.Text = "Residuals Plot"
	p.X.Label.Text = "Predicted Charges"
	p.Y.Label.Text = "Residuals"

	pts := make(plotter.XYs, actual.Len())
	for i := range pts {
		pts[i].X = predicted.AtVec(i)
		pts[i].Y = actual.AtVec(i) - predicted.AtVec(i)
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "plots: build scatter")
	}
	p.Add(scatter)

	return save(p, path)
}

// ErrorDistribution renders a histogram of the residuals.
func ErrorDistribution(actual, predicted *mat.VecDense, path string) error {
	if actual.Len() != predicted.Len() {
		return errors.NewDimensionError("plots.ErrorDistribution", actual.Len(), predicted.Len(), 0)
	}

	p := plot.New()
	p.Title.Text = "Distribution of Prediction Errors"
	p.X.Label.Text = "Residuals"
	p.Y.Label.Text = "Frequency"

	residuals := make(plotter.Values, actual.Len())
	for i := range residuals {
		residuals[i] = actual.AtVec(i) - predicted.AtVec(i)
	}

	bins := 50
	if actual.Len() < bins {
		bins = actual.Len()
	}
	hist, err := plotter.NewHist(residuals, bins)
	if err != nil {
		return errors.Wrap(err, "plots: build histogram")
	}
	p.Add(hist)

	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "plots: create directory")
	}
	return errors.Wrapf(p.Save(10*vg.Inch, 6*vg.Inch, path), "plots: save %s", path)
}
