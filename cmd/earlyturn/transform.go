package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tcxtools/earlyturn/internal/config"
	"github.com/tcxtools/earlyturn/internal/history"
	"github.com/tcxtools/earlyturn/internal/notice"
	"github.com/tcxtools/earlyturn/internal/tcx"
	"github.com/tcxtools/earlyturn/internal/util"
)

var (
	errOverwriteInput = errors.New("output would overwrite the input")
	errOutputMany     = errors.New("--output needs exactly one input file")
)

// inputs expands the command line arguments. Files a glob picked up that
// are named like earlier output are left out with a warning.
func (e *env) inputs(c *cli.Context) ([]string, error) {
	files, skipped, err := util.ExpandInputs(c.Args().Slice(), config.GetOutputConfig().Suffix)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		e.logger.Warn("Skipping earlier output matched by pattern", "file", s)
	}
	if len(files) == 0 {
		return nil, errNoInput
	}
	return files, nil
}

// transformAction writes <base><suffix>.tcx next to every input. Files are
// processed one after another; a failing file does not stop the rest.
func transformAction(c *cli.Context) error {
	e, err := setup(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	files, err := e.inputs(c)
	if err != nil {
		return err
	}
	output := c.String("output")
	if output != "" && len(files) > 1 {
		return errOutputMany
	}

	dryRun := c.Bool("dry-run")
	failed := 0
	for _, input := range files {
		if err := e.transform(c.Context, input, output, dryRun); err != nil {
			e.logger.Error("Failed to transform course", "file", input, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// transform runs one file through index, plan and apply, writes the result
// and records the run.
func (e *env) transform(ctx context.Context, input, output string, dryRun bool) error {
	started := time.Now()

	oc := config.GetOutputConfig()
	if output == "" {
		output = util.OutputPath(input, oc.Suffix)
	}
	if util.SamePath(input, output) {
		return fmt.Errorf("%w: %s", errOverwriteInput, output)
	}

	synth, err := e.synthesizer(input)
	if err != nil {
		return err
	}

	doc, err := tcx.ReadFile(input)
	if err != nil {
		return err
	}
	samples, err := notice.IndexTrack(doc)
	if err != nil {
		return err
	}
	plan, err := synth.Plan(doc, samples)
	if err != nil {
		return err
	}

	if dryRun {
		if err := writePlan(e.out, formatText, input, plan); err != nil {
			return err
		}
	} else {
		if err := synth.Apply(ctx, plan); err != nil {
			return err
		}
		if err := tcx.WriteFile(output, doc, tcx.WriteOptions{Indent: oc.Indent}); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Output file is: %s (%d early notices)\n", output, plan.Inserted())
	}

	run := history.NewRun(input, output, plan, dryRun, started, time.Now())
	if err := e.recorders.Record(ctx, run); err != nil {
		e.logger.Warn("Failed to record run", "file", input, "error", err)
	}
	return nil
}
