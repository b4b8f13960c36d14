package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/redact"
)

// Row is one JSONL record in a batch output file. Rows are written in
// completion order; Index preserves the input order.
type Row struct {
	Index      int                     `json:"index"`
	Path       string                  `json:"path"`
	ImageHash  string                  `json:"image_hash"`
	State      string                  `json:"state"`
	Palette    *core.AggregatedPalette `json:"palette,omitempty"`
	Error      string                  `json:"error,omitempty"`
	DurationMs int64                   `json:"duration_ms"`
}

func rowFrom(index int, path string, br extraction.BatchResult) Row {
	row := Row{
		Index:      index,
		Path:       path,
		ImageHash:  br.ImageHash,
		State:      string(br.State),
		Palette:    br.Palette,
		DurationMs: br.DurationMs,
	}
	if br.Err != nil {
		row.Error = redact.Secrets(br.Err.Error())
	}
	return row
}

// ReadRows decodes a JSONL stream of rows.
func ReadRows(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	var rows []Row
	for {
		var row Row
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode output row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readRowsFile loads prior output rows for a resume. A missing file is an
// empty prior run, not an error.
func readRowsFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open prior output: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("parse prior output: %w", err)
	}
	return rows, nil
}

// resumePlan splits batch inputs into rows reusable from a prior run and
// indices that still need extraction.
type resumePlan struct {
	rows    []Row // by input index; pending slots stay zero until extracted
	pending []int // input indices still to extract
	cached  int
}

// buildResumePlan reuses prior rows keyed by content hash. Only fully
// complete rows are reused; failed and partial rows are retried. When one
// hash appears several times in the prior output the last row wins.
func buildResumePlan(inputs []ImageInput, prior []Row) resumePlan {
	byHash := make(map[string]Row, len(prior))
	for _, row := range prior {
		if row.ImageHash == "" || row.State != string(core.StateComplete) {
			continue
		}
		byHash[row.ImageHash] = row
	}

	plan := resumePlan{rows: make([]Row, len(inputs))}
	for i, in := range inputs {
		if prev, ok := byHash[in.Image.Hash()]; ok {
			prev.Index = i
			prev.Path = in.Path
			plan.rows[i] = prev
			plan.cached++
			continue
		}
		plan.pending = append(plan.pending, i)
	}
	return plan
}

func countStates(rows []Row) (complete, partial, failed int) {
	for _, row := range rows {
		switch row.State {
		case string(core.StateComplete):
			complete++
		case string(core.StatePartiallyComplete):
			partial++
		default:
			failed++
		}
	}
	return complete, partial, failed
}

// writeSummaryCSV writes a spreadsheet-friendly view of a finished batch,
// one line per input in input order.
func writeSummaryCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	w := csv.NewWriter(f)
	header := []string{"index", "path", "image_hash", "state", "colors", "overall_confidence", "dominant", "duration_ms", "error"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, row := range rows {
		colors, confidence, dominant := "0", "", ""
		if row.Palette != nil {
			colors = strconv.Itoa(len(row.Palette.Tokens))
			confidence = strconv.FormatFloat(row.Palette.OverallConfidence, 'f', 3, 64)
			dominant = strings.Join(row.Palette.Dominant, " ")
		}
		rec := []string{
			strconv.Itoa(row.Index),
			row.Path,
			row.ImageHash,
			row.State,
			colors,
			confidence,
			dominant,
			strconv.FormatInt(row.DurationMs, 10),
			row.Error,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	return f.Close()
}
