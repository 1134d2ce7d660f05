package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// readMatrix reads a numeric CSV file ("-" for stdin). A first row with any
// non-numeric cell is treated as a header and skipped.
func readMatrix(path string) (*mat.Dense, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return parseMatrix(r)
}

func parseMatrix(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var data []float64
	rows, cols := 0, 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(rec))
		numeric := true
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				numeric = false
				break
			}
			vals[i] = v
		}
		if !numeric {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: non-numeric cell", line)
		}
		if cols == 0 {
			cols = len(vals)
		}
		data = append(data, vals...)
		rows++
	}
	if rows == 0 {
		return nil, fmt.Errorf("no numeric rows")
	}
	return mat.NewDense(rows, cols, data), nil
}

// writeMatrix writes m as CSV to path ("-" for stdout).
func writeMatrix(path string, stdout io.Writer, m mat.Matrix) error {
	if path == "-" {
		return formatMatrix(stdout, m)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := formatMatrix(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatMatrix(w io.Writer, m mat.Matrix) error {
	cw := csv.NewWriter(w)
	r, c := m.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
