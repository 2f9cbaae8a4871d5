package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV reads a frame from CSV. When names is empty the first record is
// the header; otherwise the input is headerless and names label the columns.
// A column is numeric when every cell parses as a float.
func ReadCSV(r io.Reader, names ...string) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	if len(names) == 0 {
		header, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		names = make([]string, len(header))
		for i, h := range header {
			names[i] = strings.TrimSpace(h)
		}
	}
	cr.FieldsPerRecord = len(names)

	cells := make([][]string, len(names))
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record %d: %w", line, err)
		}
		for j, v := range rec {
			cells[j] = append(cells[j], strings.TrimSpace(v))
		}
	}

	cols := make([]Column, len(names))
	for j, name := range names {
		cols[j] = parseColumn(name, cells[j])
	}
	return New(cols...)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, names ...string) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	return ReadCSV(fh, names...)
}

func parseColumn(name string, raw []string) Column {
	values := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return CategoricalColumn(name, raw)
		}
		values[i] = v
	}
	return NumericColumn(name, values)
}

// WriteCSV writes f with a header row.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	names := f.Names()
	if err := cw.Write(names); err != nil {
		return err
	}
	rec := make([]string, len(names))
	for i := 0; i < f.Rows(); i++ {
		for j, name := range names {
			c, _ := f.Column(name)
			if c.Kind == Categorical {
				rec[j] = c.Strings[i]
			} else {
				rec[j] = strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes f to path, replacing any existing file.
func WriteCSVFile(path string, f *Frame) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(fh, f); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}
