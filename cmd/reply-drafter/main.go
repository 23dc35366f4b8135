// Command reply-drafter drafts a reply to a single RFC 5322 message read
// from a file or stdin, without sending anything.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/mailmsg"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/di"
	"github.com/mikey/llm-email-responder/internal/logging"
)

var (
	configFile string
	inputFile  string
	provider   string
	policyDir  string
	verbose    bool
	jsonLog    bool
	jsonOut    bool
)

var rootCmd = &cobra.Command{
	Use:          "reply-drafter [flags]",
	Short:        "Draft a support reply for one email",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		logger, err := logging.InitConsoleLogger(verbose, jsonLog)
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		raw, err := readInput(logger)
		if err != nil {
			return err
		}
		email, err := mailmsg.Parse(raw)
		if err != nil {
			return err
		}

		container, err := di.BuildDrafterContainer(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(func(d di.Drafter) error {
			defer d.Close()
			draft, err := draftReply(cmd.Context(), d, email)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(draft)
			}
			printDraft(os.Stdout, email, draft)
			return nil
		})
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to config file")
	flags.StringVarP(&inputFile, "file", "f", "", "input email file (use stdin if not specified)")
	flags.StringVar(&provider, "provider", "", "LLM provider override (openai, gemini, bedrock)")
	flags.StringVar(&policyDir, "policies", "", "policy directory override")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&jsonLog, "json-log", false, "output logs in JSON format")
	flags.BoolVar(&jsonOut, "json", false, "print the draft as JSON")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("provider") {
		cfg.Set("llm.provider", provider)
	}
	if cmd.Flags().Changed("policies") {
		cfg.Set("policy.dir", policyDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readInput(logger *zap.Logger) ([]byte, error) {
	if inputFile == "" {
		logger.Info("Reading email from stdin")
		return io.ReadAll(os.Stdin)
	}
	logger.Info("Reading email from file", zap.String("file", inputFile))
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	return data, nil
}

// Draft is the outcome of drafting a reply for one email.
type Draft struct {
	Suppressed     bool             `json:"suppressed"`
	SuppressReason string           `json:"suppress_reason,omitempty"`
	Intent         core.Intent      `json:"intent,omitempty"`
	Degraded       []core.ErrorKind `json:"degraded,omitempty"`
	ChunkIDs       []string         `json:"chunk_ids,omitempty"`
	Reply          string           `json:"reply,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

func draftReply(ctx context.Context, d di.Drafter, email core.Email) (*Draft, error) {
	start := time.Now()
	draft := &Draft{}

	if suppressed, reason := d.Suppressor.IsSuppressed(email.From); suppressed {
		draft.Suppressed = true
		draft.SuppressReason = reason
		draft.Duration = time.Since(start)
		return draft, nil
	}

	if err := d.Index.Warm(ctx); err != nil {
		d.Logger.Warn("Policy index unavailable, drafting without context", zap.Error(err))
	}

	res := d.Classifier.Classify(ctx, email)
	draft.Intent = res.Intent
	if res.Degraded {
		draft.Degraded = append(draft.Degraded, core.KindClassificationDegraded)
	}

	chunks, err := d.Retriever.Retrieve(ctx, res.Intent, email)
	if err != nil || len(chunks) == 0 {
		draft.Degraded = append(draft.Degraded, core.KindRetrievalEmpty)
		chunks = nil
	}
	for _, c := range chunks {
		draft.ChunkIDs = append(draft.ChunkIDs, c.ID)
	}

	reply, err := d.Generator.Generate(ctx, email, res.Intent, chunks)
	if err != nil {
		return nil, err
	}
	draft.Reply = reply
	draft.Duration = time.Since(start)
	return draft, nil
}

func printDraft(w io.Writer, email core.Email, draft *Draft) {
	fmt.Fprintf(w, "\n=== Email Summary ===\n")
	fmt.Fprintf(w, "From: %s\n", email.From)
	fmt.Fprintf(w, "Subject: %s\n", email.Subject)
	fmt.Fprintf(w, "Body length: %d bytes\n", len(email.Body))

	fmt.Fprintf(w, "\n=== Draft ===\n")
	if draft.Suppressed {
		fmt.Fprintf(w, "No reply: sender suppressed (%s)\n", draft.SuppressReason)
		return
	}
	fmt.Fprintf(w, "Intent: %s\n", draft.Intent)
	if len(draft.Degraded) > 0 {
		fmt.Fprintf(w, "Degraded: %s\n", joinKinds(draft.Degraded))
	}
	fmt.Fprintf(w, "Policy chunks: %s\n", strings.Join(draft.ChunkIDs, ", "))
	fmt.Fprintf(w, "Subject: %s\n\n%s\n", mailmsg.ReplySubject(email.Subject), draft.Reply)
	fmt.Fprintf(w, "\nProcessing time: %v\n", draft.Duration)
}

func joinKinds(kinds []core.ErrorKind) string {
	s := make([]string, len(kinds))
	for i, k := range kinds {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, dig.RootCause(err))
		os.Exit(1)
	}
}
