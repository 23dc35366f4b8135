// Command email-responder answers unread support email using the policy
// corpus and a language model.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/di"
	"github.com/mikey/llm-email-responder/internal/logging"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "email-responder",
	Short: "Automated support email responder",
	Long: `email-responder reads unread support email, classifies each message,
retrieves the relevant policy passages and replies with a drafted answer.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file is optional.
		_ = godotenv.Load()

		var err error
		cfg, err = config.New(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Set("logging.level", "debug")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.InitLogger(cfg)
		if err != nil {
			return err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml in /etc/llm-email-responder, ~/.llm-email-responder, ./configs or .)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd, daemonCmd, statusCmd, refreshCmd)
}

// withApp builds the container and hands the wired components to fn.
func withApp(ctx context.Context, fn func(di.App) error) error {
	container, err := di.BuildContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	return container.Invoke(func(app di.App) error {
		defer app.Close()
		return fn(app)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, dig.RootCause(err))
		os.Exit(1)
	}
}
