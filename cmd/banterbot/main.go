package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/banterbot/internal/app"
	"github.com/deusflow/banterbot/internal/config"
	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/telegram"
	"github.com/deusflow/banterbot/internal/topics"
)

var (
	configPath string
	debug      bool

	notify    bool
	scheduled bool
)

var rootCmd = &cobra.Command{
	Use:   "banterbot",
	Short: "Premier League topic ranking and script pipeline",
	Long: `banterbot collects Premier League trends and news, keeps what is about the
league, scores it for viral potential and drafts three short video scripts for
the winner. Results go to Google Sheets and, when configured, Postgres.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and exit",
	RunE:  runOnce,
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Serve Telegram commands (/go, /status, /recent, /pause, /resume)",
	RunE:  runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables take precedence)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	runCmd.Flags().BoolVar(&notify, "notify", false, "narrate progress to Telegram")
	runCmd.Flags().BoolVar(&scheduled, "scheduled", false, "daily trigger: skip while paused and announce the run")

	rootCmd.AddCommand(runCmd, botCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	logger.Init(cfg.Debug)
	if missing := cfg.MissingSources(); len(missing) > 0 {
		logger.Warn("optional integrations not configured", "missing", missing)
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (notify || scheduled) && cfg.TelegramToken == "" {
		return errors.New("--notify and --scheduled need TELEGRAM_BOT_TOKEN")
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	svc, err := build(ctx, cfg, notify || scheduled)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.MonitoringEnabled {
		go startMonitoringServer(ctx, cfg.MonitoringPort, svc.limiter)
	}

	var res topics.PipelineResult
	if scheduled {
		res, err = svc.runner.RunScheduled(ctx, svc.state)
		if errors.Is(err, app.ErrPaused) {
			return nil
		}
	} else {
		res = svc.runner.Run(ctx)
	}

	logger.Info("run finished",
		"run_id", res.RunID,
		"status", res.Status,
		"persisted", res.Persisted,
		"elapsed", res.Duration())
	if res.Succeeded {
		fmt.Println(res.ScoreDisplay())
		for i, s := range res.Scripts {
			fmt.Printf("%d. %s | %s | %s\n", i+1, s.Hook, s.Premise, s.Punchline)
		}
	}
	if res.Status == topics.StateFailed {
		return fmt.Errorf("pipeline failed: %s", res.Error)
	}
	return nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	svc, err := build(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.MonitoringEnabled {
		go startMonitoringServer(ctx, cfg.MonitoringPort, svc.limiter)
	}

	bot := telegram.NewBot(svc.telegram, svc.runner, svc.history, svc.state, logger.With("bot"))
	return bot.Run(ctx)
}
