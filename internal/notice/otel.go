package notice

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tcxtools/earlyturn/internal/notice"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	synthesized metric.Int64Counter
	skipped     metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	m := meter()

	synthesized, err := m.Int64Counter(
		"earlyturn.markers.synthesized",
		metric.WithDescription("Early notice markers inserted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesized counter: %w", err)
	}

	skipped, err := m.Int64Counter(
		"earlyturn.markers.skipped",
		metric.WithDescription("Markers that produced no early notice"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	return &instruments{synthesized: synthesized, skipped: skipped}, nil
}

func (i *instruments) record(ctx context.Context, p *Plan) {
	i.synthesized.Add(ctx, int64(p.Inserted()))
	for _, reason := range Reasons {
		if n := p.Skipped(reason); n > 0 {
			i.skipped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", string(reason))))
		}
	}
}
