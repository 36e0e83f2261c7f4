package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/auraos/orchestrator/internal/catalog"
	"github.com/auraos/orchestrator/internal/scheduler"
	"github.com/auraos/orchestrator/internal/validation"
	"github.com/auraos/orchestrator/pkg/schema"
)

// errInvalid is returned when at least one file fails validation. The
// details have already been printed.
var errInvalid = errors.New("validation failed")

func newValidateCommand() *cobra.Command {
	var builtin bool

	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check workflow definition files",
		Long:  "Parses each YAML or JSON workflow file, runs registration validation and prints the next run of every enabled schedule trigger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !builtin {
				return errors.New("no files given (use --builtin to check the built-in catalog)")
			}
			v, err := validation.NewWorkflowValidator()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()

			failed := false
			if builtin {
				wfs, err := catalog.Builtins()
				if err != nil {
					return err
				}
				for _, wf := range wfs {
					if !report(out, "builtin:"+wf.ID, wf, v, now) {
						failed = true
					}
				}
			}
			for _, name := range args {
				wf, err := catalog.LoadFile(name)
				if err != nil {
					fmt.Fprintf(out, "FAIL %s\n  %v\n", name, err)
					failed = true
					continue
				}
				if !report(out, name, wf, v, now) {
					failed = true
				}
			}
			if failed {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", false, "also validate the built-in workflows")
	return cmd
}

func report(out io.Writer, label string, wf *schema.Workflow, v *validation.WorkflowValidator, now time.Time) bool {
	wf.Normalize()
	res := v.Validate(wf)
	if !res.Valid() {
		fmt.Fprintf(out, "FAIL %s (%s)\n", label, wf.ID)
		for _, issue := range res.Errors {
			fmt.Fprintf(out, "  %s: %s\n", issue.Path, issue.Message)
		}
		return false
	}

	fmt.Fprintf(out, "ok   %s (%s, %d steps, %d triggers)\n", label, wf.ID, len(wf.Steps), len(wf.Triggers))
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning %s: %s\n", w.Path, w.Message)
	}
	for i := range wf.Triggers {
		t := &wf.Triggers[i]
		if !t.Enabled || t.Type != schema.TriggerSchedule {
			continue
		}
		sp, err := t.ScheduleParams()
		if err != nil {
			continue
		}
		spec, err := scheduler.CronSpec(sp)
		if err != nil {
			continue
		}
		next, err := scheduler.NextRun(spec, now)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  next run %s (%s)\n", next.Format(time.RFC3339), spec)
	}
	return true
}
