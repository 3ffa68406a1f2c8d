// Package results holds the generation × replicate result table produced by a
// simulation run, the derived mean trajectory, and its CSV and JSON exports.
package results

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrOutOfOrder is returned when a cell is recorded out of generation order or twice.
	ErrOutOfOrder = errors.New("results: cell recorded out of generation order")

	// ErrIncomplete is returned when a table is read before every cell is filled.
	ErrIncomplete = errors.New("results: table is incomplete")
)

// Table maps (generation, replicate) to a summary value.
// Each replicate column is append-only; different columns may be filled concurrently.
type Table struct {
	generations int
	cols        [][]float64 // cols[replicate][generation]
}

// NewTable allocates an empty table. Callers validate the shape beforehand.
func NewTable(generations, replicates int) *Table {
	cols := make([][]float64, replicates)
	for r := range cols {
		cols[r] = make([]float64, 0, generations)
	}
	return &Table{generations: generations, cols: cols}
}

// Record appends the value for generation gen of replicate rep.
// gen must be the next unfilled generation of that replicate.
func (t *Table) Record(rep, gen int, v float64) error {
	if rep < 0 || rep >= len(t.cols) {
		return fmt.Errorf("%w: replicate %d of %d", ErrOutOfOrder, rep, len(t.cols))
	}
	col := t.cols[rep]
	if gen != len(col) || gen >= t.generations {
		return fmt.Errorf("%w: replicate %d expected generation %d, got %d", ErrOutOfOrder, rep, len(col), gen)
	}
	t.cols[rep] = append(col, v)
	return nil
}

// Complete reports whether every cell has been filled.
func (t *Table) Complete() bool {
	for _, col := range t.cols {
		if len(col) != t.generations {
			return false
		}
	}
	return true
}

// Generations returns the number of rows.
func (t *Table) Generations() int { return t.generations }

// Replicates returns the number of columns.
func (t *Table) Replicates() int { return len(t.cols) }

// At returns the value at generation gen of replicate rep.
func (t *Table) At(gen, rep int) float64 {
	return t.cols[rep][gen]
}

// Column returns a copy of one replicate's trajectory.
func (t *Table) Column(rep int) []float64 {
	return append([]float64(nil), t.cols[rep]...)
}

// Row returns the values of every replicate at generation gen.
func (t *Table) Row(gen int) []float64 {
	row := make([]float64, len(t.cols))
	for r, col := range t.cols {
		row[r] = col[gen]
	}
	return row
}

// Header returns the column names run1..runR.
func (t *Table) Header() []string {
	h := make([]string, len(t.cols))
	for r := range h {
		h[r] = "run" + strconv.Itoa(r+1)
	}
	return h
}

// Mean returns the per-generation arithmetic mean across replicates.
func (t *Table) Mean() []float64 {
	mean := make([]float64, t.generations)
	if len(t.cols) == 0 {
		return mean
	}
	for g := range mean {
		sum := 0.0
		for _, col := range t.cols {
			sum += col[g]
		}
		mean[g] = sum / float64(len(t.cols))
	}
	return mean
}

// WriteCSV writes the table as UTF-8 CSV: a header row naming each replicate,
// then one row per generation, no index column.
func (t *Table) WriteCSV(w io.Writer) error {
	return t.writeCSV(w, false)
}

// WriteMeanCSV is WriteCSV with a trailing "mean" column.
func (t *Table) WriteMeanCSV(w io.Writer) error {
	return t.writeCSV(w, true)
}

func (t *Table) writeCSV(w io.Writer, withMean bool) error {
	if !t.Complete() {
		return ErrIncomplete
	}

	cw := csv.NewWriter(w)
	header := t.Header()
	var mean []float64
	if withMean {
		header = append(header, "mean")
		mean = t.Mean()
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for g := 0; g < t.generations; g++ {
		for r, col := range t.cols {
			record[r] = FormatValue(col[g])
		}
		if withMean {
			record[len(record)-1] = FormatValue(mean[g])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write generation %d: %w", g, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatValue renders v in plain decimal notation. Integral values keep a
// trailing ".0" so every cell reads as a real number.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [[...], ...]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	if !t.Complete() {
		return nil, ErrIncomplete
	}
	rows := make([][]float64, t.generations)
	for g := range rows {
		rows[g] = t.Row(g)
	}
	return json.Marshal(struct {
		Columns []string    `json:"columns"`
		Rows    [][]float64 `json:"rows"`
	}{t.Header(), rows})
}
