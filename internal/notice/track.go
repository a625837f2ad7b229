// Package notice inserts early turn notifications into a course: every
// CoursePoint gets a copy placed a fixed number of Trackpoints earlier so the
// device announces the turn before the rider reaches it.
package notice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tcxtools/earlyturn/internal/tcx"
)

// DefaultLookback is the number of samples stepped back from a matched marker.
const DefaultLookback = 2

var (
	// ErrMalformedInput is returned when a record lacks a required field or
	// the document has no Course. Nothing is modified when it occurs.
	ErrMalformedInput = errors.New("malformed input")
	// ErrInvalidLookback is returned for a negative lookback distance.
	ErrInvalidLookback = errors.New("lookback distance must not be negative")
)

// Sample is one Trackpoint in course order. Coordinates and time are kept as
// the literal text from the file.
type Sample struct {
	Index     int
	Latitude  string
	Longitude string
	Time      string
}

type triple struct {
	lat, lon, time string
}

func (s Sample) key() triple {
	return triple{s.Latitude, s.Longitude, s.Time}
}

// IndexTrack lists every Trackpoint under the document's Course in document
// order. Duplicates are kept.
func IndexTrack(doc *tcx.Document) ([]Sample, error) {
	course, err := courseOf(doc)
	if err != nil {
		return nil, err
	}

	points := course.Find("Trackpoint")
	samples := make([]Sample, 0, len(points))
	for i, tp := range points {
		tim, err := fieldText(tp, "Time")
		if err != nil {
			return nil, fmt.Errorf("trackpoint %d: %w", i, err)
		}
		lat, err := fieldText(tp, "Position", "LatitudeDegrees")
		if err != nil {
			return nil, fmt.Errorf("trackpoint %d: %w", i, err)
		}
		lon, err := fieldText(tp, "Position", "LongitudeDegrees")
		if err != nil {
			return nil, fmt.Errorf("trackpoint %d: %w", i, err)
		}

		samples = append(samples, Sample{
			Index:     i,
			Latitude:  lat,
			Longitude: lon,
			Time:      tim,
		})
	}

	return samples, nil
}

func courseOf(doc *tcx.Document) (*tcx.Node, error) {
	course := doc.Course()
	if course == nil {
		return nil, fmt.Errorf("%w: no Course element", ErrMalformedInput)
	}
	return course, nil
}

// fieldText returns the text at the given child path. An element that is
// present but empty yields "".
func fieldText(n *tcx.Node, path ...string) (string, error) {
	el := n.ChildPath(path...)
	if el == nil {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedInput, strings.Join(path, "/"))
	}
	return el.Text(), nil
}
