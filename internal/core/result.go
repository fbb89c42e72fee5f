package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
)

// Result artifact columns appended after the original header.
const (
	ScoreColumn = "Topsis Score"
	RankColumn  = "Rank"
)

// AttachmentName is the file name every emailed artifact carries.
const AttachmentName = "result.csv"

// ArtifactName returns the on-disk name of the artifact for calculation id.
func ArtifactName(id uuid.UUID) string {
	return "result-" + id.String() + ".csv"
}

// WriteResult writes ds with a score and rank column appended to every row.
// Original cells are written unchanged.
func WriteResult(w io.Writer, ds *Dataset, r *Ranking) error {
	if len(r.Scores) != ds.RowCount() || len(r.Ranks) != ds.RowCount() {
		return fmt.Errorf("write result: ranking has %d scores for %d rows", len(r.Scores), ds.RowCount())
	}

	cw := csv.NewWriter(w)

	header := make([]string, 0, len(ds.Header)+2)
	header = append(header, ds.Header...)
	header = append(header, ScoreColumn, RankColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write result header: %w", err)
	}

	for i, row := range ds.Rows {
		out := make([]string, 0, len(row)+2)
		out = append(out, row...)
		out = append(out, FormatScore(r.Scores[i]), strconv.Itoa(r.Ranks[i]))
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("write result row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatScore renders a score with the fewest digits that round-trip.
func FormatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
