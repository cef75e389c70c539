// Package report renders a finished run for the command line.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"

	"github.com/sells-group/niche-scout/internal/discovery"
	"github.com/sells-group/niche-scout/internal/model"
	"github.com/sells-group/niche-scout/internal/resilience"
	"github.com/sells-group/niche-scout/internal/scorer"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", eris.Errorf("report: --format must be table, csv or json (got %q)", s)
	}
}

// Row is one ranked candidate with its score breakdown.
type Row struct {
	Rank      int              `json:"rank"`
	Candidate model.Candidate  `json:"candidate"`
	Breakdown scorer.Breakdown `json:"breakdown"`
}

// Rows pairs each candidate with its breakdown in ranked order. Only the
// first limit rows are kept when limit > 0.
func Rows(cands []model.Candidate, sc *scorer.Scorer, limit int) []Row {
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	rows := make([]Row, len(cands))
	for i, c := range cands {
		rows[i] = Row{Rank: i + 1, Candidate: c, Breakdown: sc.Breakdown(c)}
	}
	return rows
}

// Write renders the run in the requested format.
func Write(w io.Writer, format Format, res *discovery.RunResult, sc *scorer.Scorer, limit int) error {
	rows := Rows(res.Candidates, sc, limit)
	switch format {
	case FormatJSON:
		return writeJSON(w, res, rows)
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatTable:
		writeTable(w, rows)
		return nil
	default:
		return eris.Errorf("report: unsupported format %q", format)
	}
}

type jsonReport struct {
	RunID    string                   `json:"run_id"`
	Mode     discovery.Mode           `json:"mode"`
	Results  []Row                    `json:"results"`
	Stages   []discovery.StageReport  `json:"stages"`
	Sources  []resilience.SourceStats `json:"sources"`
	Failures []resilience.DLQEntry    `json:"failures,omitempty"`
}

func writeJSON(w io.Writer, res *discovery.RunResult, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	out := jsonReport{
		RunID:    res.RunID,
		Mode:     res.Mode,
		Results:  rows,
		Stages:   res.Stages,
		Sources:  res.Sources,
		Failures: res.Failures,
	}
	return eris.Wrap(enc.Encode(out), "report: encode json")
}

var csvHeader = []string{
	"rank", "name", "score", "source_category", "keyword", "origin", "niche",
	"trend_direction", "trend_magnitude", "saturation_tier", "result_count", "max_review_count",
	"avg_rating", "polarity", "post_count", "positive_ratio",
	"base", "competition", "sentiment", "niche_bonus", "validation", "adjustment",
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, r := range rows {
		c, b := r.Candidate, r.Breakdown
		rec := []string{
			strconv.Itoa(r.Rank),
			c.Name,
			num(c.ScoreValue()),
			c.SourceCategory,
			c.Keyword,
			string(c.Origin),
			string(c.Niche),
			"", "", "", "", "", "", "", "", "",
			num(b.Base), num(b.Competition), num(b.Sentiment), num(b.Niche), num(b.Validation), num(b.Adjustment),
		}
		if t := c.Trend; t != nil {
			rec[7], rec[8] = string(t.Direction), num(t.Magnitude)
		}
		if m := c.Marketplace; m != nil {
			rec[9], rec[10], rec[11], rec[12] = string(m.SaturationTier), strconv.Itoa(m.ResultCount), strconv.Itoa(m.MaxReviewCount), num(m.AvgRating)
		}
		if s := c.Sentiment; s != nil {
			rec[13], rec[14], rec[15] = num(s.Polarity), strconv.Itoa(s.PostCount), num(s.PositiveRatio)
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}

func writeTable(w io.Writer, rows []Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Product", "Score", "Trend", "Saturation", "Sentiment", "Niche", "Category"})
	for _, r := range rows {
		c := r.Candidate
		t.AppendRow(table.Row{
			r.Rank,
			truncate(c.Name, 48),
			fmt.Sprintf("%.1f", c.ScoreValue()),
			trendCell(c.Trend),
			saturationCell(c.Marketplace),
			sentimentCell(c.Sentiment),
			string(c.Niche),
			c.SourceCategory,
		})
	}
	t.Render()
}

// WriteSummary prints per-stage and per-source counts for the run.
func WriteSummary(w io.Writer, res *discovery.RunResult) {
	st := table.NewWriter()
	st.SetOutputMirror(w)
	st.SetStyle(table.StyleLight)
	st.AppendHeader(table.Row{"Stage", "Attempted", "Succeeded", "Failed", "Duration"})
	for _, s := range res.Stages {
		if s.Skipped {
			st.AppendRow(table.Row{s.Stage, "-", "-", "-", "skipped"})
			continue
		}
		st.AppendRow(table.Row{s.Stage, s.Attempted, s.Succeeded, s.Failed, s.Duration.Round(time.Millisecond)})
	}
	st.Render()

	if len(res.Sources) > 0 {
		src := table.NewWriter()
		src.SetOutputMirror(w)
		src.SetStyle(table.StyleLight)
		src.AppendHeader(table.Row{"Source", "Circuit", "Calls", "OK", "Failed", "Rate limited", "Rejected"})
		for _, s := range res.Sources {
			src.AppendRow(table.Row{s.Source, s.State, s.Permits, s.Successes, s.Failures, s.RateLimited, s.Rejected})
		}
		src.Render()
	}

	fmt.Fprintf(w, "Run %s: %d candidates, %d failed sub-tasks in %s\n",
		res.RunID, len(res.Candidates), len(res.Failures), res.Duration.Round(time.Millisecond))
}

func trendCell(t *model.TrendSignal) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %+.2f", t.Direction, t.Magnitude)
}

func saturationCell(m *model.MarketplaceSignal) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", m.SaturationTier, m.ResultCount)
}

func sentimentCell(s *model.SentimentSignal) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f / %d posts", s.Polarity, s.PostCount)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
