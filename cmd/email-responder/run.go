package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/di"
)

var (
	runMax  int
	runJSON bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one batch of unread email and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(app di.App) error {
			if err := app.Start(ctx); err != nil {
				return err
			}
			report, err := app.Service.ProcessOnce(ctx, runMax)
			if report != nil {
				if runJSON {
					printJSON(os.Stdout, report)
				} else {
					printReport(os.Stdout, report)
				}
			}
			return err
		})
	},
}

func init() {
	runCmd.Flags().IntVar(&runMax, "max", 0, "maximum emails to process (default: workflow.max_emails)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the batch report as JSON")
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printReport(w io.Writer, r *core.BatchReport) {
	fmt.Fprintf(w, "=== Run %s ===\n", r.RunID)
	fmt.Fprintf(w, "Fetched: %d\n", r.Fetched)
	fmt.Fprintf(w, "Sent:    %d\n", r.Sent)
	fmt.Fprintf(w, "Skipped: %d\n", r.Skipped)
	for _, reason := range sortedKeys(r.SkippedByReason) {
		fmt.Fprintf(w, "  %-20s %d\n", reason, r.SkippedByReason[reason])
	}
	fmt.Fprintf(w, "Failed:  %d\n", r.Failed)
	for _, kind := range sortedKeys(r.FailedByKind) {
		fmt.Fprintf(w, "  %-20s %d\n", kind, r.FailedByKind[kind])
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %v\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}

	for _, res := range r.Results {
		if res.Outcome != core.OutcomeFailed {
			continue
		}
		fmt.Fprintf(w, "\n%s failed at %s (%s): %s\n", res.MessageID, res.FailedStage, res.Kind, res.Reason)
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
