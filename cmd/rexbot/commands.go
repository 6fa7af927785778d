package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"rexbot/internal/api"
	"rexbot/internal/bot"
	"rexbot/internal/configcache"
	"rexbot/internal/engagement"
	"rexbot/internal/logging"
	"rexbot/internal/matching"
	"rexbot/internal/models"
	"rexbot/internal/scheduler"
	"rexbot/internal/session"
	"rexbot/internal/store"
	"rexbot/internal/survey"
	"rexbot/internal/telegram"
	"rexbot/internal/util"
	"rexbot/internal/worker"
)

// pollTimeout is the long-poll hold passed to the chat platform, seconds.
const pollTimeout = 30

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the inbound event loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			ctx, cancel := signalContext()
			defer cancel()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			rdb, err := openRedis(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			cache := configcache.NewRedisCache(rdb)
			sessions := session.NewRedisStore(rdb)
			surveys := survey.New(sessions, st, cache, q)
			engage := engagement.New(st, engagement.WithCreditThreshold(cfg.CreditThreshold))
			router := bot.New(bot.Config{AdminIDs: cfg.AdminIDs}, st, surveys, engage, q, buildMessaging(cfg))

			go runOpsServer(ctx, cfg, st)

			client := telegram.NewClient(cfg.BotToken)
			slog.Info("bot started")
			return pollLoop(ctx, client, router)
		},
	}
}

// pollLoop long-polls updates and dispatches each one on its own goroutine;
// the router serializes per user.
func pollLoop(ctx context.Context, client *telegram.Client, router *bot.Router) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("update poll failed", "error", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			event, callbackID, ok := toEvent(u)
			if !ok {
				continue
			}
			go func() {
				router.HandleEvent(ctx, event)
				if callbackID != "" {
					if err := client.AnswerCallbackQuery(ctx, callbackID); err != nil {
						slog.Debug("callback answer failed", "error", err)
					}
				}
			}()
		}
	}
}

func toEvent(u telegram.Update) (bot.Event, string, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		e := bot.Event{
			UserID:   u.Message.From.ID,
			Username: u.Message.From.Username,
			FullName: fullName(u.Message.From),
			Text:     u.Message.Text,
		}
		if len(u.Message.Photo) > 0 {
			e.PhotoID = u.Message.Photo[len(u.Message.Photo)-1].FileID
		}
		return e, "", true
	case u.Callback != nil && u.Callback.From != nil:
		return bot.Event{
			UserID:       u.Callback.From.ID,
			Username:     u.Callback.From.Username,
			FullName:     fullName(u.Callback.From),
			CallbackData: u.Callback.Data,
		}, u.Callback.ID, true
	default:
		return bot.Event{}, "", false
	}
}

func fullName(u *telegram.ChatUser) string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func newGenWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genworker",
		Short: "Run the content generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			ctx, cancel := signalContext()
			defer cancel()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			rdb, err := openRedis(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			go runOpsServer(ctx, cfg, st)

			w := worker.NewGenerationWorker(q, configcache.NewRedisCache(rdb), st, buildGenerator(cfg), buildAlerter(cfg))
			slog.Info("generation worker started")
			return ignoreCanceled(w.Run(ctx))
		},
	}
}

func newSenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sender",
		Short: "Run the message delivery worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			ctx, cancel := signalContext()
			defer cancel()

			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			go runOpsServer(ctx, cfg, nil)

			w := worker.NewDeliveryWorker(q, buildMessaging(cfg), buildAlerter(cfg))
			slog.Info("delivery worker started")
			return ignoreCanceled(w.Run(ctx))
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the periodic job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			ctx, cancel := signalContext()
			defer cancel()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			rdb, err := openRedis(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()
			q, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			cache := configcache.NewRedisCache(rdb)
			jobs := &scheduler.Jobs{
				Store:    st,
				Queue:    q,
				Cache:    cache,
				Syncer:   buildSyncer(cfg, cache),
				Gen:      buildGenerator(cfg),
				Matching: matching.New(st, q),
			}
			sched := scheduler.New(ctx, buildAlerter(cfg))
			if err := jobs.Register(sched); err != nil {
				return err
			}

			go runOpsServer(ctx, cfg, st)

			// Warm the config cache before the first cron tick.
			sched.RunNow("config_refresh", jobs.RefreshConfig)
			sched.Start()
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh survey and prompt configuration once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			rdb, err := openRedis(cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()
			return buildSyncer(cfg, configcache.NewRedisCache(rdb)).Refresh(context.Background())
		},
	}
}

func newQRCmd() *cobra.Command {
	var (
		count       int
		batchID     string
		botUsername string
		printQR     bool
	)
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Generate a batch of activation codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.LogLevel, cfg.LogFile)
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now()
			codes := make([]models.ActivationCode, count)
			links := make([]string, count)
			for i := range codes {
				code := util.GenerateActivationCode()
				codes[i] = models.ActivationCode{
					CodeHash:  code,
					BatchID:   batchID,
					IsActive:  true,
					CreatedAt: now,
				}
				links[i] = fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
			}
			if err := st.CreateActivationCodes(context.Background(), codes); err != nil {
				return err
			}

			fmt.Println("link,code")
			for i, link := range links {
				fmt.Printf("%s,%s\n", link, codes[i].CodeHash)
				if printQR {
					qrterminal.Generate(link, qrterminal.L, os.Stdout)
				}
			}
			slog.Info("activation codes generated", "batch", batchID, "count", count)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100, "number of codes to generate")
	cmd.Flags().StringVar(&batchID, "batch", "BATCH_001", "batch identifier stamped on every code")
	cmd.Flags().StringVar(&botUsername, "bot-username", "RexBot", "bot username used in deep links")
	cmd.Flags().BoolVar(&printQR, "print-qr", false, "render each link as a terminal QR code")
	return cmd
}

func runOpsServer(ctx context.Context, cfg config, st store.Store) {
	srv := api.NewServer(cfg.OpsAddr, st)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown failed", "error", err)
		}
	}()
	if err := srv.Run(); err != nil {
		slog.Error("ops server failed", "error", err)
	}
}

// ignoreCanceled treats shutdown-driven cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
