package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TestFlowLabs/testlink-sub002/internal/engine"
	"github.com/TestFlowLabs/testlink-sub002/internal/model"
	"github.com/TestFlowLabs/testlink-sub002/internal/ranking"
	"github.com/TestFlowLabs/testlink-sub002/internal/report"
	"github.com/TestFlowLabs/testlink-sub002/internal/toon"
)

func newReportCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		maxUnits int
		format   string
		unit     string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show every link between code units and tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "toon" && format != "text" {
				return fmt.Errorf("unsupported format %q (want toon or text)", format)
			}
			e, _, err := setup(opts, stderr)
			if err != nil {
				return err
			}

			r, scanErrs, err := e.Report(cmd.Context())
			if err != nil {
				return err
			}
			reportErrors(stderr, scanErrs)

			if unit != "" {
				r = ranking.FilterByUnit(r, unit)
			}
			if file != "" {
				r = ranking.FilterByFile(r, file)
			}
			r = ranking.SelectUnits(r, maxUnits)

			if format == "text" {
				return report.WriteText(stdout, r)
			}
			_, err = fmt.Fprintln(stdout, toon.Encode(r))
			return err
		},
	}

	cmd.Flags().IntVarP(&maxUnits, "max-units", "n", 0, "show only the N most-linked code units")
	cmd.Flags().StringVarP(&format, "format", "f", "toon", "output format: toon or text")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "only code units whose name contains this substring")
	cmd.Flags().StringVar(&file, "file", "", "only links touching files whose path contains this substring")
	return cmd
}

func newValidateCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every link is declared on both sides",
		Long: `validate reports links declared on one side only, declarations pointing at
code or tests that no longer exist, and unresolved placeholders. It never
modifies files. The exit status is 1 when errors are found, or warnings too
with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := setup(opts, stderr)
			if err != nil {
				return err
			}
			res, err := e.Validate(cmd.Context())
			if err != nil {
				return err
			}

			for _, issue := range res.Issues {
				_, _ = fmt.Fprintln(stdout, issue.String())
			}
			_, _ = fmt.Fprintf(stdout, "%d link declaration(s), %d error(s), %d warning(s)\n",
				res.Links, res.Errors, res.Warnings)

			if res.Failed(strict) {
				return &exitError{reason: "validation failed"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on warnings too")
	return cmd
}

func newSyncCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var so engine.SyncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Add the missing side of every one-sided link",
		Long: `sync adds a test-side link for each TestedBy declaration the test does not
reciprocate, and a TestedBy declaration for each test-side link the code unit
does not reciprocate. --see also adds @see references on both sides. --prune
removes declarations whose target no longer exists and requires --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := setup(opts, stderr)
			if err != nil {
				return err
			}
			res, err := e.Sync(cmd.Context(), so)
			if res != nil {
				printActions(stdout, res.Actions, res.Changes, so.DryRun)
				reportErrors(stderr, res.Errors)
			}
			if err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return &exitError{reason: "sync finished with errors"}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&so.DryRun, "dry-run", false, "print the plan without writing files")
	f.BoolVar(&so.LinkOnly, "link-only", false, "add links that do not count toward coverage")
	f.BoolVar(&so.Doc, "see", false, "also add @see references")
	f.BoolVar(&so.Prune, "prune", false, "remove orphaned declarations")
	f.BoolVar(&so.Force, "force", false, "confirm destructive operations")
	return cmd
}

func newPairCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var po engine.PairOptions

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Resolve @placeholder markers into concrete links",
		Long: `pair finds placeholder markers such as '@checkout' used in place of a link
target. A marker seen on N code units and M tests becomes N x M concrete links,
written on both sides, and the markers are removed. Markers seen on one side
only are reported and left in place. '@@name' markers become @see references.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, _, err := setup(opts, stderr)
			if err != nil {
				return err
			}
			res, err := e.Pair(cmd.Context(), po)
			if res != nil {
				for _, t := range res.Tokens {
					status := fmt.Sprintf("%d link(s)", t.Links())
					if !t.Resolved() {
						status = "unresolved"
					}
					_, _ = fmt.Fprintf(stdout, "@%s: %d production, %d test: %s\n",
						t.Name, len(t.Production), len(t.Tests), status)
				}
				printActions(stdout, res.Actions, res.Changes, po.DryRun)
				reportErrors(stderr, res.Errors)
			}
			if err != nil {
				return err
			}
			if res.Unresolved() > 0 || len(res.Errors) > 0 {
				return &exitError{reason: "unresolved placeholders"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&po.DryRun, "dry-run", false, "print the plan without writing files")
	cmd.Flags().StringVar(&po.Only, "placeholder", "", "resolve only this placeholder, e.g. @checkout")
	return cmd
}

func printActions(w io.Writer, actions []model.EditAction, changes []engine.FileChange, dryRun bool) {
	for _, a := range actions {
		_, _ = fmt.Fprintln(w, a.String())
	}
	if dryRun {
		_, _ = fmt.Fprintf(w, "%d action(s) planned (dry run)\n", len(actions))
		return
	}
	written := 0
	for _, c := range changes {
		if c.Applied > 0 {
			written++
		}
	}
	_, _ = fmt.Fprintf(w, "%d action(s), %d file(s) updated\n", len(actions), written)
}
