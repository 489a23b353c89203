package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"story_feedback_collector/config"
	"story_feedback_collector/events"
	"story_feedback_collector/logging"
	"story_feedback_collector/review"
	"story_feedback_collector/server"
	"story_feedback_collector/sheets"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storyfeedback",
		Short:         "Collect automated feedback on user stories into a Google Sheet",
		SilenceUsage:  true,
	}
	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newPromptsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("cannot create config: %w", err)
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewFromLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	reviewer, err := buildReviewer(cfg)
	if err != nil {
		return err
	}
	appender, err := buildAppender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	notifier := events.New(events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, Logger: logger})
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn(ctx, "close notifier", zap.Error(err))
		}
	}()

	srv, err := server.New(server.Deps{
		Reviewer:  reviewer,
		Appender:  appender,
		Notifier:  notifier,
		Logger:    logger,
		RateLimit: server.RateLimit{RPS: cfg.Limits.RPS, Burst: cfg.Limits.Burst},
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting web server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.Int("prompts", len(reviewer.Prompts())),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("cannot start http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info(ctx, "server stopped")
	return nil
}

func newAnalyzeCmd() *cobra.Command {
	var (
		story  string
		dod    string
		apiKey string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Review one user story from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if story == "" || dod == "" {
				return errors.New("--story and --dod are required")
			}
			if apiKey == "" {
				apiKey = os.Getenv("LLM_API_KEY")
			}
			if apiKey == "" {
				return errors.New("--api-key or LLM_API_KEY is required")
			}

			cfg, err := config.New()
			if err != nil {
				return err
			}
			reviewer, err := buildReviewer(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			items, err := reviewer.Review(ctx, apiKey, story, dod)
			if err != nil {
				return err
			}
			printFeedback(items)

			if !save {
				return nil
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			appender, err := buildAppender(ctx, cfg, logging.Nop())
			if err != nil {
				return err
			}
			if err := appender.Append(ctx, sheets.BuildRow(time.Now(), story, dod, items)); err != nil {
				return err
			}
			color.Green("Feedback saved to spreadsheet %s", cfg.Sheet.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&story, "story", "", "user story text")
	cmd.Flags().StringVar(&dod, "dod", "", "definition of done")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "LLM API key (default $LLM_API_KEY)")
	cmd.Flags().BoolVar(&save, "save", false, "append the result to the spreadsheet")
	return cmd
}

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the configured analysis prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			prompts, err := review.LoadPrompts(cfg.LLM.PromptsFile)
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
			for i, p := range prompts {
				fmt.Printf("%d. %s\n   %s\n", i+1, cyan(p.Title), p.Prompt)
			}
			return nil
		},
	}
}

func printFeedback(items []review.FeedbackItem) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	for _, item := range items {
		fmt.Printf("\n%s\n%s\n", cyan("=== "+item.Title+" ==="), item.Content)
	}
}

func buildReviewer(cfg *config.Config) (*review.Reviewer, error) {
	prompts, err := review.LoadPrompts(cfg.LLM.PromptsFile)
	if err != nil {
		return nil, err
	}
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return review.NewReviewer(llm, prompts, review.Options{
		Concurrency: cfg.LLM.Concurrency,
		CallTimeout: cfg.LLM.CallTimeout,
	})
}

func buildLLM(cfg config.LLMConfig) (review.LLMClient, error) {
	settings := &review.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	}
	switch cfg.Provider {
	case "", "openai":
		return review.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek exposes an OpenAI-compatible API at its own base URL.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires LLM_BASE_URL (OpenAI-compatible endpoint)")
		}
		return review.NewOpenAILLMFromConfig(settings)
	case "anthropic":
		return review.NewAnthropicLLMFromConfig(settings)
	case "gemini":
		return review.NewGeminiLLMFromConfig(settings)
	case "mock":
		return review.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func buildAppender(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*sheets.Client, error) {
	creds, err := cfg.Google.ServiceAccountJSON()
	if err != nil {
		return nil, err
	}
	return sheets.New(ctx, sheets.Config{
		SpreadsheetID:       cfg.Sheet.ID,
		Range:               cfg.Sheet.Range,
		VerifyAccess:        cfg.Sheet.VerifyAccess,
		ServiceAccountEmail: cfg.Google.ClientEmail,
	}, creds, logger)
}
