package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tcxtools/earlyturn/internal/notice"
	"github.com/tcxtools/earlyturn/internal/tcx"
)

var errHistoryDisabled = errors.New("run history is disabled; set history.enabled or pass --history")

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "text, json, yaml or csv",
		Value:   formatText,
		Action: func(_ *cli.Context, v string) error {
			return checkFormat(v)
		},
	}
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "show, per course point, whether and where an early notice would go",
		ArgsUsage: "FILE...",
		Flags:     []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			e, err := setup(c, false)
			if err != nil {
				return err
			}
			defer e.Close()

			files, err := e.inputs(c)
			if err != nil {
				return err
			}

			var rows []decisionRow
			for _, input := range files {
				plan, err := e.plan(input)
				if err != nil {
					return fmt.Errorf("%s: %w", input, err)
				}
				rows = append(rows, planRows(input, plan)...)
			}
			return writeRows(e.out, c.String("format"), rows)
		},
	}
}

func (e *env) plan(input string) (*notice.Plan, error) {
	synth, err := e.synthesizer(input)
	if err != nil {
		return nil, err
	}
	doc, err := tcx.ReadFile(input)
	if err != nil {
		return nil, err
	}
	samples, err := notice.IndexTrack(doc)
	if err != nil {
		return nil, err
	}
	return synth.Plan(doc, samples)
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recorded runs, newest first",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of runs",
				Value: 20,
			},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.manager == nil {
				return errHistoryDisabled
			}

			runs, err := e.manager.Recent(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			return writeRows(e.out, c.String("format"), runRows(runs))
		},
	}
}
