package notice

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// filterEnv is what a filter expression sees for one marker.
type filterEnv struct {
	Name      string `expr:"name"`
	PointType string `expr:"pointType"`
	Notes     string `expr:"notes"`
	Time      string `expr:"time"`
	Latitude  string `expr:"lat"`
	Longitude string `expr:"lon"`
}

// CompileFilter compiles a boolean expression over a marker's fields, for
// example `pointType in ["Left", "Right"]` or `notes != ""`. An empty
// source returns a nil Filter, which keeps every marker.
func CompileFilter(source string) (Filter, error) {
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid marker filter: %w", err)
	}
	return programFilter(program), nil
}

func programFilter(program *vm.Program) Filter {
	return func(m Marker) (bool, error) {
		out, err := expr.Run(program, filterEnv{
			Name:      m.Name,
			PointType: m.PointType,
			Notes:     m.Notes,
			Time:      m.Time,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
		})
		if err != nil {
			return false, err
		}
		keep, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("marker filter returned %T, want bool", out)
		}
		return keep, nil
	}
}
