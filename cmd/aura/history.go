package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/auraos/orchestrator/internal/store"
	"github.com/auraos/orchestrator/pkg/schema"
)

func newHistoryCommand(configFile *string) *cobra.Command {
	var (
		workflowID string
		failed     bool
		since      time.Duration
		limit      int
		recoveries bool
		vacuum     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openExistingStore(cmd.Context(), *configFile, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if vacuum {
				if err := st.Vacuum(cmd.Context()); err != nil {
					return fmt.Errorf("vacuum: %w", err)
				}
				fmt.Fprintln(out, "database vacuumed")
				return nil
			}
			if recoveries {
				recs, err := st.ListRecoveries(cmd.Context(), store.RecoveryFilter{WorkflowID: workflowID, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, recs)
				}
				return printRecoveries(out, recs)
			}

			filter := store.ExecutionFilter{WorkflowID: workflowID, Limit: limit}
			if failed {
				f := false
				filter.Success = &f
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			recs, err := st.ListExecutions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, recs)
			}
			return printExecutions(out, recs)
		},
	}

	f := cmd.Flags()
	f.String("db-path", "", "libSQL database path")
	f.StringVar(&workflowID, "workflow", "", "only this workflow ID")
	f.BoolVar(&failed, "failed", false, "only failed runs")
	f.DurationVar(&since, "since", 0, "only runs newer than this, e.g. 24h")
	f.IntVar(&limit, "limit", 20, "maximum records (0 for all)")
	f.BoolVar(&recoveries, "recoveries", false, "list recovery attempts instead of runs")
	f.BoolVar(&vacuum, "vacuum", false, "compact the database file instead of listing")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newWorkflowsCommand(configFile *string) *cobra.Command {
	var (
		status   string
		category string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "workflows [id]",
		Short: "List workflows saved in the database, or print one definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExistingStore(cmd.Context(), *configFile, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				wf, err := st.GetWorkflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), wf)
			}

			filter := store.WorkflowFilter{Category: schema.WorkflowCategory(category)}
			if status != "" {
				s := schema.WorkflowStatus(status)
				filter.Status = &s
			}
			wfs, err := st.ListWorkflows(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				summaries := make([]schema.WorkflowSummary, 0, len(wfs))
				for _, wf := range wfs {
					summaries = append(summaries, schema.Summarize(wf))
				}
				return writeJSON(out, summaries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tSTATUS\tRUNS\tSUCCESS\tAVG MS")
			for _, wf := range wfs {
				p := wf.Performance
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.0f\n", wf.ID, wf.Category, wf.Status, p.Executions, p.SuccessRate, p.AverageExecutionTime)
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.String("db-path", "", "libSQL database path")
	f.StringVar(&status, "status", "", "only workflows with this status")
	f.StringVar(&category, "category", "", "only workflows in this category")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// openExistingStore opens the configured database without creating it.
func openExistingStore(ctx context.Context, configFile string, cmd *cobra.Command) (*store.LibSQLStore, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd, map[string]string{"db_path": "db-path"}); err != nil {
		return nil, err
	}
	dbPath := v.GetString("db_path")
	if dbPath == "" {
		return nil, errors.New("db_path is empty; persistence is disabled")
	}
	if _, err := os.Stat(strings.TrimPrefix(dbPath, "file:")); err != nil {
		return nil, fmt.Errorf("no database at %s: %w", dbPath, err)
	}
	return store.Open(ctx, dbPath)
}

func printExecutions(out io.Writer, recs []*schema.ExecutionRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tWORKFLOW\tEXECUTION\tRESULT\tSTEPS\tMS\tERROR")
	for _, r := range recs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Timestamp.Local().Format(time.DateTime), r.WorkflowID, r.ExecutionID, result, r.Steps, r.ExecutionTime, r.Error)
	}
	return tw.Flush()
}

func printRecoveries(out io.Writer, recs []*schema.ErrorRecoveryRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tWORKFLOW\tSTEP\tRECOVERED\tSUGGESTION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			r.Timestamp.Local().Format(time.DateTime), r.WorkflowID, r.StepID, r.Success, r.Suggestion)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
