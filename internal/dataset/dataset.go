// Package dataset loads the raw insurance records from CSV.
//
// Records are immutable once loaded. Any malformed row fails the load with a
// DataError naming the row and column; the pipeline never trains on partially
// parsed data.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Record is one observation: the patient's features plus the target charges.
type Record struct {
	Age      int     `json:"age"`
	Sex      string  `json:"sex"`
	BMI      float64 `json:"bmi"`
	Children int     `json:"children"`
	Smoker   string  `json:"smoker"`
	Region   string  `json:"region"`
	Charges  float64 `json:"charges"`
}

// Column names of the raw CSV schema.
const (
	ColAge      = "age"
	ColSex      = "sex"
	ColBMI      = "bmi"
	ColChildren = "children"
	ColSmoker   = "smoker"
	ColRegion   = "region"
	ColCharges  = "charges"
)

// Load reads the full dataset from a CSV file with a header row.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataError(path, 0, "", err.Error())
	}
	defer f.Close()

	return Read(f, path)
}

// Read parses CSV content. source is used in error messages only.
func Read(r io.Reader, source string) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewDataError(source, 0, "", "missing header row")
	}

	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{ColAge, ColSex, ColBMI, ColChildren, ColSmoker, ColRegion, ColCharges} {
		if _, ok := col[required]; !ok {
			return nil, errors.NewDataError(source, 1, required, "column missing from header")
		}
	}

	var records []Record
	row := 1 // header was row 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, errors.NewDataError(source, row, "", err.Error())
		}

		rec, err := parseRecord(fields, col, source, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, errors.NewDataError(source, 0, "", "no data rows")
	}
	return records, nil
}

func parseRecord(fields []string, col map[string]int, source string, row int) (Record, error) {
	get := func(name string) (string, error) {
		i := col[name]
		if i >= len(fields) {
			return "", errors.NewDataError(source, row, name, "field missing")
		}
		v := strings.TrimSpace(fields[i])
		if v == "" {
			return "", errors.NewDataError(source, row, name, "field empty")
		}
		return v, nil
	}

	var rec Record

	ageStr, err := get(ColAge)
	if err != nil {
		return rec, err
	}
	age, err := strconv.Atoi(ageStr)
	if err != nil {
		return rec, errors.NewDataError(source, row, ColAge, "not an integer: "+ageStr)
	}
	rec.Age = age

	if rec.Sex, err = get(ColSex); err != nil {
		return rec, err
	}

	bmiStr, err := get(ColBMI)
	if err != nil {
		return rec, err
	}
	if rec.BMI, err = strconv.ParseFloat(bmiStr, 64); err != nil {
		return rec, errors.NewDataError(source, row, ColBMI, "not a number: "+bmiStr)
	}

	childrenStr, err := get(ColChildren)
	if err != nil {
		return rec, err
	}
	if rec.Children, err = strconv.Atoi(childrenStr); err != nil {
		return rec, errors.NewDataError(source, row, ColChildren, "not an integer: "+childrenStr)
	}

	if rec.Smoker, err = get(ColSmoker); err != nil {
		return rec, err
	}
	if rec.Region, err = get(ColRegion); err != nil {
		return rec, err
	}

	chargesStr, err := get(ColCharges)
	if err != nil {
		return rec, err
	}
	if rec.Charges, err = strconv.ParseFloat(chargesStr, 64); err != nil {
		return rec, errors.NewDataError(source, row, ColCharges, "not a number: "+chargesStr)
	}
	if rec.Charges < 0 {
		return rec, errors.NewDataError(source, row, ColCharges, "negative target value")
	}

	return rec, nil
}

// NumericValue returns the named numeric column of a record.
func NumericValue(rec Record, column string) (float64, error) {
	switch column {
	case ColAge:
		return float64(rec.Age), nil
	case ColBMI:
		return rec.BMI, nil
	case ColChildren:
		return float64(rec.Children), nil
	case ColCharges:
		return rec.Charges, nil
	default:
		return 0, errors.Newf("medcost: unknown numeric column %q", column)
	}
}

// CategoricalValue returns the named categorical column of a record.
func CategoricalValue(rec Record, column string) (string, error) {
	switch column {
	case ColSex:
		return rec.Sex, nil
	case ColSmoker:
		return rec.Smoker, nil
	case ColRegion:
		return rec.Region, nil
	default:
		return "", errors.Newf("medcost: unknown categorical column %q", column)
	}
}
