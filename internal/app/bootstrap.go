package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nepse_watch/internal/domain"
	"nepse_watch/internal/infra"
	"nepse_watch/internal/infra/discord"
	"nepse_watch/internal/infra/nepse"
	"nepse_watch/internal/infra/storage"
	"nepse_watch/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Store     storage.Repository
	Discord   *discord.Client
	Goals     *service.GoalService
	Commands  *service.Commands
	Gateway   *discord.Gateway
	Scheduler *service.Scheduler
	Health    *infra.HealthServer
	Metrics   *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize loads configuration and builds every component. Nothing is
// started yet.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping NEPSE goal watch...", slog.String("version", cfg.App.Version))

	if cfg.Discord.Token == "" {
		return &domain.ConfigError{Field: "discord.token", Err: errors.New("DISCORD_BOT_TOKEN is not set")}
	}

	// 3. Watchlist Store
	store, err := storage.New(cfg)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Watchlist store ready", slog.String("driver", cfg.Storage.Driver))

	// 4. Quote source, notifier and goal service
	quotes := nepse.NewClientFromConfig(cfg)
	b.Discord = discord.NewClient(cfg.Discord.APIURL, cfg.Discord.Token)
	b.Goals = service.NewGoalService(store, quotes, b.Discord, b.Metrics).WithFetchTimeout(cfg.FetchTimeout())
	b.Commands = service.NewCommands(b.Goals, cfg.Discord.CommandPrefix, b.Metrics)

	// 5. Scheduler
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := service.NewCycleScheduler(cfg.Schedule.Cron, loc, b.Goals)
	if err != nil {
		return err
	}
	b.Scheduler = sched

	// 6. Chat gateway and liveness endpoint
	b.Gateway = discord.NewGateway(cfg.Discord.GatewayURL, cfg.Discord.Token, discord.DefaultIntents,
		b.handleMessage, b.Metrics.SetGatewayConnected)
	b.Health = infra.NewHealthServer(cfg.Server.Port, b.Metrics)

	return nil
}

// handleMessage runs a chat command and posts the reply in the same channel.
func (b *Bootstrap) handleMessage(ctx context.Context, msg discord.Message) {
	reply, ok := b.Commands.Dispatch(ctx, msg.Author.ID, msg.Content)
	if !ok {
		return
	}
	if err := b.Discord.SendMessage(ctx, msg.ChannelID, reply); err != nil {
		slog.Warn("Failed to send command reply",
			slog.String("channel_id", msg.ChannelID),
			slog.String("user_id", msg.Author.ID),
			slog.Any("error", err))
	}
}

// RunOnce performs a single goal check and releases resources.
func (b *Bootstrap) RunOnce(ctx context.Context) error {
	defer b.closeStore()
	_, err := b.Goals.RunCycle(ctx)
	return err
}

// Run starts the liveness server, the gateway and the scheduler, then blocks
// until ctx is cancelled and shuts everything down.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Health.Start()

	if err := b.Gateway.Connect(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "✅ Discord gateway started")

	b.Scheduler.Start(ctx)

	slog.InfoContext(ctx, "✨ NEPSE goal watch fully operational. Press Ctrl+C to exit.")
	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")

	b.shutdown()
	return nil
}

func (b *Bootstrap) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := b.Scheduler.Stop(shutdownCtx); err != nil {
		slog.Warn("Scheduler did not stop in time", slog.Any("error", err))
	}
	b.Gateway.Disconnect()
	if err := b.Health.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Liveness server shutdown failed", slog.Any("error", err))
	}
	b.closeStore()
}

func (b *Bootstrap) closeStore() {
	if b.Store == nil {
		return
	}
	if err := b.Store.Close(); err != nil {
		slog.Warn("Failed to close watchlist store", slog.Any("error", err))
	}
}
