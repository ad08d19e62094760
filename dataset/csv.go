package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
)

// Load reads a CSV file with a header row and projects it onto features and
// target. Source columns that are not configured are ignored.
//
// A feature column is numeric when every cell parses as a float and
// categorical otherwise. The target must be numeric in every row.
func Load(path string, features []string, target string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer file.Close()

	ds, err := Read(file, features, target)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}

	log.GetLoggerWithName("dataset").Info("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, len(features),
	)
	return ds, nil
}

// Read is Load for an arbitrary reader.
func Read(r io.Reader, features []string, target string) (*Dataset, error) {
	if target == "" {
		return nil, errors.NewValueError("Load", "target column is required")
	}
	if err := checkColumns("Load", features, target); err != nil {
		return nil, err
	}

	reader := csv.NewReader(bufio.NewReader(r))
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewValueError("Load", "no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	position := make(map[string]int, len(header))
	for i, name := range header {
		position[strings.TrimSpace(name)] = i
	}
	featureIdx := make([]int, len(features))
	for j, name := range features {
		i, ok := position[name]
		if !ok {
			return nil, errors.NewSchemaError("Load", name, "not found in header")
		}
		featureIdx[j] = i
	}
	targetIdx, ok := position[target]
	if !ok {
		return nil, errors.NewSchemaError("Load", target, "not found in header")
	}

	cells := make([][]string, len(features))
	var y []float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}
		for j, i := range featureIdx {
			cells[j] = append(cells[j], strings.TrimSpace(record[i]))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[targetIdx]), 64)
		if err != nil {
			return nil, errors.NewSchemaError("Load", target, "target is not numeric on line "+strconv.Itoa(line))
		}
		y = append(y, v)
	}
	if len(y) == 0 {
		return nil, errors.NewValueError("Load", "no data rows")
	}

	columns := make([]Column, len(features))
	for j, name := range features {
		columns[j] = inferColumn(name, cells[j])
	}
	return newDataset(columns, target, y, len(y)), nil
}

func inferColumn(name string, cells []string) Column {
	floats := make([]float64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Column{Name: name, Kind: Categorical, Categorical: cells}
		}
		floats[i] = v
	}
	return Column{Name: name, Kind: Numeric, Numeric: floats}
}
