package loader

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/prepkit/prepkit/pkg/dataset"
	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/factory"
)

func init() {
	factory.Register(factory.Descriptor{
		Name:   "CsvLoader",
		Family: "Loader",
		Params: []factory.ParamSpec{
			{Name: "input_path", Kind: factory.KindScalar},
			{Name: "input_columns", Kind: factory.KindScalar},
			{Name: "output_columns", Kind: factory.KindScalar},
			{Name: "delimiter", Kind: factory.KindScalar},
			{Name: "id_column", Kind: factory.KindScalar},
		},
		New: func(params map[string]any) (any, error) {
			return NewCSVLoader(factory.Params(params))
		},
	})
}

// CSVLoader reads a delimited file into samples at construction time.
// Named input columns become sample inputs (as strings); output columns
// are parsed as floats, with empty cells mapping to NaN. Row order is
// preserved and identifiers come from id_column when set, the row index
// otherwise.
type CSVLoader struct {
	path       string
	inputCols  []string
	outputCols []string
	samples    []*dataset.Sample
}

// NewCSVLoader builds a loader from factory parameters. The file is
// read eagerly; any I/O or parse failure aborts construction.
func NewCSVLoader(params factory.Params) (*CSVLoader, error) {
	path, err := params.RequireString("input_path")
	if err != nil {
		return nil, err
	}
	inputCols, err := params.Strings("input_columns")
	if err != nil {
		return nil, err
	}
	outputCols, err := params.Strings("output_columns")
	if err != nil {
		return nil, err
	}
	if len(inputCols) == 0 {
		return nil, errors.Validationf("loader", "input_columns must name at least one column")
	}

	l := &CSVLoader{
		path:       path,
		inputCols:  inputCols,
		outputCols: outputCols,
	}
	if err := l.read(params.String("delimiter", ","), params.String("id_column", "")); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *CSVLoader) read(delimiter, idColumn string) error {
	file, err := os.Open(l.path)
	if err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "loader", "cannot open %s", l.path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if delimiter != "" {
		reader.Comma = rune(delimiter[0])
	}

	records, err := reader.ReadAll()
	if err != nil {
		return errors.WrapAs(err, errors.CategoryValidation, "loader", "cannot parse %s", l.path)
	}
	if len(records) == 0 {
		return errors.Validationf("loader", "%s has no header row", l.path)
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[name] = i
	}
	for _, name := range append(append([]string{}, l.inputCols...), l.outputCols...) {
		if _, ok := columns[name]; !ok {
			return errors.Validationf("loader", "%s has no column named %q", l.path, name)
		}
	}
	if idColumn != "" {
		if _, ok := columns[idColumn]; !ok {
			return errors.Validationf("loader", "%s has no column named %q", l.path, idColumn)
		}
	}

	l.samples = make([]*dataset.Sample, 0, len(records)-1)
	for row, record := range records[1:] {
		sample := &dataset.Sample{
			ID:     int64(row),
			Inputs: make(map[string]any, len(l.inputCols)),
		}
		if idColumn != "" {
			id, err := strconv.ParseInt(record[columns[idColumn]], 10, 64)
			if err != nil {
				return errors.Validationf("loader", "row %d: id column %q is not an integer: %v", row, idColumn, err)
			}
			sample.ID = id
		}
		for _, name := range l.inputCols {
			sample.Inputs[name] = record[columns[name]]
		}
		sample.Outputs = make([]float64, 0, len(l.outputCols))
		for _, name := range l.outputCols {
			cell := record[columns[name]]
			if cell == "" {
				sample.Outputs = append(sample.Outputs, math.NaN())
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return errors.Validationf("loader", "row %d: column %q is not numeric: %v", row, name, err)
			}
			sample.Outputs = append(sample.Outputs, value)
		}
		l.samples = append(l.samples, sample)
	}
	return nil
}

func (l *CSVLoader) Len() int {
	return len(l.samples)
}

func (l *CSVLoader) Sample(i int) (*dataset.Sample, error) {
	if i < 0 || i >= len(l.samples) {
		return nil, errors.Internalf("loader", "sample index %d out of range [0, %d)", i, len(l.samples))
	}
	return l.samples[i], nil
}

// Fingerprint stamps the backing file's path and modification time.
func (l *CSVLoader) Fingerprint() (string, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return "", errors.WrapAs(err, errors.CategoryStorage, "loader", "cannot stat %s", l.path)
	}
	return fmt.Sprintf("%s@%d", l.path, info.ModTime().UnixNano()), nil
}

func (l *CSVLoader) FeatureCount() int {
	return len(l.inputCols)
}

func (l *CSVLoader) ClassCount() int {
	return len(l.outputCols)
}
