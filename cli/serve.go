package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/medcasebot/bot"
	"github.com/korjavin/medcasebot/delivery"
	"github.com/korjavin/medcasebot/platform"
	"github.com/korjavin/medcasebot/quota"
	"github.com/korjavin/medcasebot/session"
	"github.com/korjavin/medcasebot/stats"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const reapInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()
	cfg, log := env.cfg, env.log

	if err := cfg.RequireBotToken(); err != nil {
		return err
	}

	cat := env.catalog()
	if cfg.CatalogFile != "" {
		n, err := cat.Import(ctx, cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("importing catalog: %w", err)
		}
		log.Info("Catalog imported", "file", cfg.CatalogFile, "cases", n)
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug
	log.Info("Authorized on Telegram", "bot", api.Self.UserName)

	telegram := platform.NewTelegram(api)
	controller := delivery.NewController(delivery.NewAdapter(telegram, log), cat, log, delivery.ControllerOptions{
		MaxAttempts:     cfg.DeliveryMaxAttempts,
		RetryDelay:      cfg.DeliveryRetryDelay,
		RateLimitBuffer: cfg.RateLimitBuffer,
	})

	g, gctx := errgroup.WithContext(ctx)

	store, closeStore, err := openSessionStore(gctx, g, env)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker := quota.New(env.db, cfg.Location(), nil)
	engine := session.NewEngine(session.Deps{
		Catalog:   cat,
		Deliverer: controller,
		Quota:     tracker,
		Stats:     stats.New(env.db),
		Responses: env.db,
		Messenger: telegram,
		Store:     store,
	}, log)
	b := bot.New(cfg, env.db, engine, tracker, telegram, log)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	g.Go(func() error {
		<-gctx.Done()
		api.StopReceivingUpdates()
		return nil
	})
	g.Go(func() error {
		return b.Run(gctx, updates)
	})

	log.Info("Bot initialized successfully", "time_zone", cfg.Location().String(), "default_daily_limit", cfg.DefaultDailyLimit)
	err = g.Wait()
	log.Info("Bot stopped")
	return err
}

// openSessionStore uses Redis when configured and an in-process store with a reaper otherwise
func openSessionStore(ctx context.Context, g *errgroup.Group, env *environment) (session.Store, func(), error) {
	cfg, log := env.cfg, env.log
	if cfg.RedisAddr != "" {
		rs, err := session.NewRedisStore(ctx, cfg.RedisAddr, cfg.SessionIdleTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info("Using redis session store", "addr", cfg.RedisAddr)
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Warn("Error closing redis", "error", err)
			}
		}, nil
	}

	ms := session.NewMemoryStore()
	if cfg.SessionIdleTTL > 0 {
		g.Go(func() error {
			return ms.RunReaper(ctx, reapInterval, cfg.SessionIdleTTL, log)
		})
	}
	log.Info("Using in-memory session store", "idle_ttl", cfg.SessionIdleTTL.String())
	return ms, func() {}, nil
}
