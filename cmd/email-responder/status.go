package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/di"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check component readiness and print policy index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(app di.App) error {
			if err := app.Index.Warm(ctx); err != nil {
				app.Logger.Warn("Policy index unavailable", zap.Error(err))
			}
			st := app.Service.Status(ctx)
			printJSON(os.Stdout, st)
			for name, ready := range st.Components {
				if !ready {
					return fmt.Errorf("component %s is not ready", name)
				}
			}
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the policy index from the policy directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(app di.App) error {
			if err := app.Service.RefreshPolicies(ctx); err != nil {
				return err
			}
			snap := app.Index.Current()
			fmt.Printf("Policy index version %d: %d documents, %d chunks\n",
				snap.Version, len(snap.Documents), len(snap.Chunks))
			return nil
		})
	},
}
