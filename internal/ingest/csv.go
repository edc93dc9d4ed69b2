// Package ingest loads the target batch from a CSV file into venue field
// bags.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"wave_trader/internal/core"
)

// Batch is a parsed target file: one field bag per target row, plus the
// distinct instruments the rows reference, in first-seen order.
type Batch struct {
	Targets     []core.Fields
	Instruments []string
}

// LoadTargets reads a headered CSV file of targets. Columns named in
// stringColumns keep their text value; every other column is parsed as a
// number. Empty cells are omitted from the row's field bag.
func LoadTargets(path string, stringColumns []string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("targets file %s has no target rows", path)
	}

	isString := make(map[string]bool, len(stringColumns))
	for _, col := range stringColumns {
		isString[col] = true
	}

	header := records[0]
	batch := &Batch{}
	seen := make(map[string]bool)

	for line, record := range records[1:] {
		fields := make(core.Fields, len(header))
		for i, cell := range record {
			if i >= len(header) || cell == "" {
				continue
			}
			name := header[i]
			if isString[name] {
				fields[name] = core.Str(cell)
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("targets file %s line %d: column %s: %w",
					path, line+2, name, err)
			}
			fields[name] = core.Num(v)
		}

		if instrument, ok := fields.String(core.FieldInstrument); ok && !seen[instrument] {
			seen[instrument] = true
			batch.Instruments = append(batch.Instruments, instrument)
		}
		batch.Targets = append(batch.Targets, fields)
	}

	return batch, nil
}
