package notice

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tcxtools/earlyturn/internal/geo"
	"github.com/tcxtools/earlyturn/internal/tcx"
)

// ErrPlanApplied is returned when a plan is applied a second time.
var ErrPlanApplied = errors.New("plan has already been applied")

// Reason records why a marker produced no early notice.
type Reason string

const (
	ReasonNoMatch            Reason = "no_match"
	ReasonLookbackOutOfRange Reason = "lookback_out_of_range"
	ReasonFiltered           Reason = "filtered"
)

// Reasons lists every skip reason.
var Reasons = []Reason{ReasonNoMatch, ReasonLookbackOutOfRange, ReasonFiltered}

// Filter decides whether a marker that would get an early notice keeps it.
type Filter func(Marker) (bool, error)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFilter limits early notices to markers f accepts. Rejected markers are
// skipped with ReasonFiltered.
func WithFilter(f Filter) Option {
	return func(s *Synthesizer) {
		s.filter = f
	}
}

// Marker is a read-only view of an existing CoursePoint.
type Marker struct {
	Name      string
	Time      string
	Latitude  string
	Longitude string
	PointType string
	Notes     string

	Node *tcx.Node
}

func (m Marker) key() triple {
	return triple{m.Latitude, m.Longitude, m.Time}
}

func readMarker(n *tcx.Node) (Marker, error) {
	m := Marker{Node: n}
	fields := []struct {
		dst  *string
		path []string
	}{
		{&m.Name, []string{"Name"}},
		{&m.Time, []string{"Time"}},
		{&m.Latitude, []string{"Position", "LatitudeDegrees"}},
		{&m.Longitude, []string{"Position", "LongitudeDegrees"}},
		{&m.PointType, []string{"PointType"}},
		{&m.Notes, []string{"Notes"}},
	}
	for _, f := range fields {
		text, err := fieldText(n, f.path...)
		if err != nil {
			return Marker{}, err
		}
		*f.dst = text
	}
	return m, nil
}

// Decision is the outcome for one original marker.
type Decision struct {
	Marker Marker

	// MatchedIndex is the first sample equal to the marker's position and
	// time, or -1.
	MatchedIndex int
	// LookbackIndex is MatchedIndex minus the lookback distance. Only set when
	// a sample matched.
	LookbackIndex int
	// Skip is empty when Synthesized is set.
	Skip        Reason
	Synthesized *tcx.Node

	// LeadMeters is the along-track distance between the synthesized and the
	// original marker. LeadKnown is false when a coordinate failed to parse.
	LeadMeters float64
	LeadKnown  bool
}

// Plan lists one decision per original marker in document order.
type Plan struct {
	Lookback  int
	Samples   int
	Decisions []Decision

	applied bool
}

// Inserted counts decisions that carry a synthesized marker.
func (p *Plan) Inserted() int {
	n := 0
	for _, d := range p.Decisions {
		if d.Synthesized != nil {
			n++
		}
	}
	return n
}

// Skipped counts decisions skipped for the given reason.
func (p *Plan) Skipped(reason Reason) int {
	n := 0
	for _, d := range p.Decisions {
		if d.Skip == reason {
			n++
		}
	}
	return n
}

// Synthesizer plans and applies early notice markers.
type Synthesizer struct {
	lookback int
	filter   Filter
	logger   *slog.Logger
	metrics  *instruments
}

// New creates a Synthesizer stepping back lookback samples. A nil logger
// falls back to slog.Default().
func New(lookback int, logger *slog.Logger, opts ...Option) (*Synthesizer, error) {
	if lookback < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLookback, lookback)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}

	s := &Synthesizer{
		lookback: lookback,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookback returns the configured lookback distance.
func (s *Synthesizer) Lookback() int {
	return s.lookback
}

// Run indexes the track, plans and applies in one go.
func (s *Synthesizer) Run(ctx context.Context, doc *tcx.Document) (*Plan, error) {
	samples, err := IndexTrack(doc)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plan(doc, samples)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Plan decides, without touching doc, which markers get an early notice.
// The marker list is captured up front so markers inserted later are never
// treated as originals.
func (s *Synthesizer) Plan(doc *tcx.Document, samples []Sample) (*Plan, error) {
	course, err := courseOf(doc)
	if err != nil {
		return nil, err
	}

	nodes := course.Find("CoursePoint")
	markers := make([]Marker, 0, len(nodes))
	for i, n := range nodes {
		m, err := readMarker(n)
		if err != nil {
			return nil, fmt.Errorf("coursepoint %d: %w", i, err)
		}
		markers = append(markers, m)
	}

	// First occurrence wins when a triple repeats along the track.
	first := make(map[triple]int, len(samples))
	for _, smp := range samples {
		if _, ok := first[smp.key()]; !ok {
			first[smp.key()] = smp.Index
		}
	}

	plan := &Plan{
		Lookback:  s.lookback,
		Samples:   len(samples),
		Decisions: make([]Decision, 0, len(markers)),
	}

	for _, m := range markers {
		d := Decision{Marker: m, MatchedIndex: -1, LookbackIndex: -1}

		matched, ok := first[m.key()]
		if !ok {
			d.Skip = ReasonNoMatch
			s.logger.Debug("No trackpoint matches marker", "name", m.Name, "time", m.Time)
			plan.Decisions = append(plan.Decisions, d)
			continue
		}

		d.MatchedIndex = matched
		d.LookbackIndex = matched - s.lookback
		if d.LookbackIndex < 0 {
			d.Skip = ReasonLookbackOutOfRange
			s.logger.Debug("Marker too close to track start", "name", m.Name, "matchedIndex", matched)
			plan.Decisions = append(plan.Decisions, d)
			continue
		}

		if s.filter != nil {
			keep, err := s.filter(m)
			if err != nil {
				return nil, fmt.Errorf("filter marker %q: %w", m.Name, err)
			}
			if !keep {
				d.Skip = ReasonFiltered
				s.logger.Debug("Marker rejected by filter", "name", m.Name, "pointType", m.PointType)
				plan.Decisions = append(plan.Decisions, d)
				continue
			}
		}

		d.Synthesized = synthesize(m, samples[d.LookbackIndex])
		d.LeadMeters, d.LeadKnown = leadDistance(samples[d.LookbackIndex : matched+1])
		plan.Decisions = append(plan.Decisions, d)
	}

	return plan, nil
}

// Apply splices every synthesized marker in immediately before its original.
func (s *Synthesizer) Apply(ctx context.Context, plan *Plan) error {
	if plan.applied {
		return ErrPlanApplied
	}

	for _, d := range plan.Decisions {
		if d.Synthesized == nil {
			continue
		}
		parent := d.Marker.Node.Parent
		if parent == nil {
			return fmt.Errorf("marker %q is detached from the document", d.Marker.Name)
		}
		if err := parent.InsertBefore(d.Synthesized, d.Marker.Node); err != nil {
			return fmt.Errorf("failed to insert early notice for %q: %w", d.Marker.Name, err)
		}
	}
	plan.applied = true

	s.metrics.record(ctx, plan)
	s.logger.Info("Early notices inserted",
		"inserted", plan.Inserted(),
		"noMatch", plan.Skipped(ReasonNoMatch),
		"outOfRange", plan.Skipped(ReasonLookbackOutOfRange),
		"filtered", plan.Skipped(ReasonFiltered),
		"lookback", plan.Lookback,
	)

	return nil
}

// synthesize builds a CoursePoint carrying m's description at smp's position
// and time. Child order follows the TCX schema.
func synthesize(m Marker, smp Sample) *tcx.Node {
	prefix := m.Node.Name.Space
	name := func(local string) xml.Name {
		return xml.Name{Space: prefix, Local: local}
	}

	position := tcx.NewElement(name("Position"))
	position.AppendChild(tcx.NewTextElement(name("LatitudeDegrees"), smp.Latitude))
	position.AppendChild(tcx.NewTextElement(name("LongitudeDegrees"), smp.Longitude))

	cp := tcx.NewElement(name("CoursePoint"))
	cp.AppendChild(tcx.NewTextElement(name("Name"), m.Name))
	cp.AppendChild(tcx.NewTextElement(name("Time"), smp.Time))
	cp.AppendChild(position)
	cp.AppendChild(tcx.NewTextElement(name("PointType"), m.PointType))
	cp.AppendChild(tcx.NewTextElement(name("Notes"), m.Notes))
	return cp
}

func leadDistance(span []Sample) (float64, bool) {
	points := make([]geo.LatLon, 0, len(span))
	for _, smp := range span {
		ll, err := geo.ParseLatLon(smp.Latitude, smp.Longitude)
		if err != nil {
			return 0, false
		}
		points = append(points, ll)
	}
	meters, err := geo.PathLength(points)
	if err != nil {
		return 0, false
	}
	return meters, true
}
