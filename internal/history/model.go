package history

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/tcxtools/earlyturn/internal/notice"
	"gorm.io/datatypes"
)

// Models lists the tables AutoMigrate creates.
var Models = []interface{}{
	&Run{},
	&RunMarker{},
}

// Run is one transformation of one input file.
type Run struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	CreatedAt  time.Time `json:"createdAt"`
	InputPath  string    `json:"inputPath" gorm:"size:1024;index:idx_run_input"`
	OutputPath string    `json:"outputPath" gorm:"size:1024"`
	DryRun     bool      `json:"dryRun"`
	Lookback   int       `json:"lookback"`
	Samples    int       `json:"samples"`
	Markers    int       `json:"markers"`
	Inserted   int       `json:"inserted"`
	NoMatch    int       `json:"noMatch"`
	OutOfRange int       `json:"outOfRange"`
	Filtered   int       `json:"filtered"`
	StartedAt  time.Time `json:"startedAt" gorm:"index:idx_run_started"`
	FinishedAt time.Time `json:"finishedAt"`

	// Skipped markers as a JSON array of SkipDetail.
	SkipDetails datatypes.JSON `json:"skipDetails"`

	EarlyNotices []RunMarker `json:"earlyNotices" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// RunMarker is one early notice inserted by a run.
type RunMarker struct {
	ID            uint     `json:"id" gorm:"primarykey"`
	RunID         uint     `json:"runId" gorm:"index:idx_run_marker_run"`
	Name          string   `json:"name" gorm:"size:255"`
	PointType     string   `json:"pointType" gorm:"size:64"`
	MatchedIndex  int      `json:"matchedIndex"`
	LookbackIndex int      `json:"lookbackIndex"`
	Time          string   `json:"time" gorm:"size:64"`
	Latitude      string   `json:"latitude" gorm:"size:32"`
	Longitude     string   `json:"longitude" gorm:"size:32"`
	LeadMeters    *float64 `json:"leadMeters"` // nil when a coordinate did not parse
}

// SkipDetail describes a marker that got no early notice.
type SkipDetail struct {
	Name         string        `json:"name"`
	Time         string        `json:"time"`
	Reason       notice.Reason `json:"reason"`
	MatchedIndex int           `json:"matchedIndex"`
}

// NewRun summarizes an applied (or dry-run) plan for recording.
func NewRun(input, output string, plan *notice.Plan, dryRun bool, started, finished time.Time) *Run {
	run := &Run{
		InputPath:  filepath.Clean(input),
		OutputPath: output,
		DryRun:     dryRun,
		Lookback:   plan.Lookback,
		Samples:    plan.Samples,
		Markers:    len(plan.Decisions),
		Inserted:   plan.Inserted(),
		NoMatch:    plan.Skipped(notice.ReasonNoMatch),
		OutOfRange: plan.Skipped(notice.ReasonLookbackOutOfRange),
		Filtered:   plan.Skipped(notice.ReasonFiltered),
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}

	skips := []SkipDetail{}
	for _, d := range plan.Decisions {
		if d.Skip != "" {
			skips = append(skips, SkipDetail{
				Name:         d.Marker.Name,
				Time:         d.Marker.Time,
				Reason:       d.Skip,
				MatchedIndex: d.MatchedIndex,
			})
			continue
		}
		if d.Synthesized == nil {
			continue
		}

		rm := RunMarker{
			Name:          d.Marker.Name,
			PointType:     d.Marker.PointType,
			MatchedIndex:  d.MatchedIndex,
			LookbackIndex: d.LookbackIndex,
			Time:          d.Synthesized.ChildPath("Time").Text(),
			Latitude:      d.Synthesized.ChildPath("Position", "LatitudeDegrees").Text(),
			Longitude:     d.Synthesized.ChildPath("Position", "LongitudeDegrees").Text(),
		}
		if d.LeadKnown {
			lead := d.LeadMeters
			rm.LeadMeters = &lead
		}
		run.EarlyNotices = append(run.EarlyNotices, rm)
	}

	data, _ := json.Marshal(skips)
	run.SkipDetails = datatypes.JSON(data)
	return run
}

// Skips decodes SkipDetails.
func (r *Run) Skips() ([]SkipDetail, error) {
	var out []SkipDetail
	if len(r.SkipDetails) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.SkipDetails, &out); err != nil {
		return nil, err
	}
	return out, nil
}
