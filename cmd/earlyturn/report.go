package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/tcxtools/earlyturn/internal/history"
	"github.com/tcxtools/earlyturn/internal/notice"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	formatCSV  = "csv"
)

func checkFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML, formatCSV:
		return nil
	}
	return fmt.Errorf("unknown format %q", f)
}

type tableRow interface {
	header() []string
	cells() []string
}

// decisionRow is one course point in a plan report.
type decisionRow struct {
	File          string `json:"file" yaml:"file" csv:"file"`
	Marker        string `json:"marker" yaml:"marker" csv:"marker"`
	PointType     string `json:"pointType" yaml:"pointType" csv:"point_type"`
	Time          string `json:"time" yaml:"time" csv:"time"`
	MatchedIndex  int    `json:"matchedIndex" yaml:"matchedIndex" csv:"matched_index"`
	LookbackIndex int    `json:"lookbackIndex" yaml:"lookbackIndex" csv:"lookback_index"`
	Action        string `json:"action" yaml:"action" csv:"action"`
	Reason        string `json:"reason,omitempty" yaml:"reason,omitempty" csv:"reason"`
	LeadMeters    string `json:"leadMeters,omitempty" yaml:"leadMeters,omitempty" csv:"lead_m"`
}

func (decisionRow) header() []string {
	return []string{"FILE", "MARKER", "TYPE", "TIME", "MATCHED", "LOOKBACK", "ACTION", "REASON", "LEAD (m)"}
}

func (r decisionRow) cells() []string {
	return []string{
		r.File, r.Marker, r.PointType, r.Time,
		index(r.MatchedIndex), index(r.LookbackIndex),
		r.Action, r.Reason, r.LeadMeters,
	}
}

func index(i int) string {
	if i < 0 {
		return "-"
	}
	return strconv.Itoa(i)
}

func planRows(file string, plan *notice.Plan) []decisionRow {
	rows := make([]decisionRow, 0, len(plan.Decisions))
	for _, d := range plan.Decisions {
		row := decisionRow{
			File:          file,
			Marker:        d.Marker.Name,
			PointType:     d.Marker.PointType,
			Time:          d.Marker.Time,
			MatchedIndex:  d.MatchedIndex,
			LookbackIndex: d.LookbackIndex,
			Action:        "insert",
			Reason:        string(d.Skip),
		}
		if d.Skip != "" {
			row.Action = "skip"
		}
		if d.LeadKnown {
			row.LeadMeters = strconv.FormatFloat(d.LeadMeters, 'f', 1, 64)
		}
		rows = append(rows, row)
	}
	return rows
}

// runRow is one recorded run in a history report.
type runRow struct {
	ID         uint   `json:"id" yaml:"id" csv:"id"`
	StartedAt  string `json:"startedAt" yaml:"startedAt" csv:"started_at"`
	Input      string `json:"input" yaml:"input" csv:"input"`
	Output     string `json:"output" yaml:"output" csv:"output"`
	DryRun     bool   `json:"dryRun" yaml:"dryRun" csv:"dry_run"`
	Lookback   int    `json:"lookback" yaml:"lookback" csv:"lookback"`
	Markers    int    `json:"markers" yaml:"markers" csv:"markers"`
	Inserted   int    `json:"inserted" yaml:"inserted" csv:"inserted"`
	NoMatch    int    `json:"noMatch" yaml:"noMatch" csv:"no_match"`
	OutOfRange int    `json:"outOfRange" yaml:"outOfRange" csv:"out_of_range"`
	Filtered   int    `json:"filtered" yaml:"filtered" csv:"filtered"`
}

func (runRow) header() []string {
	return []string{"ID", "STARTED", "INPUT", "OUTPUT", "DRY RUN", "LOOKBACK", "MARKERS", "INSERTED", "NO MATCH", "OUT OF RANGE", "FILTERED"}
}

func (r runRow) cells() []string {
	return []string{
		strconv.FormatUint(uint64(r.ID), 10), r.StartedAt, r.Input, r.Output,
		strconv.FormatBool(r.DryRun), strconv.Itoa(r.Lookback), strconv.Itoa(r.Markers),
		strconv.Itoa(r.Inserted), strconv.Itoa(r.NoMatch), strconv.Itoa(r.OutOfRange),
		strconv.Itoa(r.Filtered),
	}
}

func runRows(runs []history.Run) []runRow {
	rows := make([]runRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, runRow{
			ID:         r.ID,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			Input:      r.InputPath,
			Output:     r.OutputPath,
			DryRun:     r.DryRun,
			Lookback:   r.Lookback,
			Markers:    r.Markers,
			Inserted:   r.Inserted,
			NoMatch:    r.NoMatch,
			OutOfRange: r.OutOfRange,
			Filtered:   r.Filtered,
		})
	}
	return rows
}

func writePlan(w io.Writer, format, file string, plan *notice.Plan) error {
	return writeRows(w, format, planRows(file, plan))
}

func writeRows[T tableRow](w io.Writer, format string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}

	switch format {
	case formatText:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		var zero T
		fmt.Fprintln(tw, strings.Join(zero.header(), "\t"))
		for _, r := range rows {
			fmt.Fprintln(tw, strings.Join(r.cells(), "\t"))
		}
		return tw.Flush()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case formatCSV:
		return gocsv.Marshal(rows, w)
	}
	return checkFormat(format)
}
