package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"demandForecastApp/config"
	"demandForecastApp/internal/app"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/service"
	api "demandForecastApp/internal/handlers/http"
	"demandForecastApp/internal/infrastructure/queue"
	"demandForecastApp/pkg/utils"
)

// cli carries what every subcommand shares once the root pre-run has loaded it.
type cli struct {
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "demandForecastApp",
		Short:         "Daily order rollups, demand forecasts and anomaly alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.cfg = config.LoadConfig()
			log, err := setupLogger(c.cfg.Env)
			if err != nil {
				return fmt.Errorf("setup logger: %w", err)
			}
			c.log = log.With(zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.RunE = c.runPipeline

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Roll up all orders, forecast every pair and send notifications",
			RunE:  c.runPipeline,
		},
		c.aggregateCmd(),
		&cobra.Command{
			Use:   "forecast",
			Short: "Forecast every pair from the existing daily rollups",
			RunE:  c.runForecast,
		},
		c.simulateCmd(),
		c.backfillCmd(),
		c.produceCmd(),
		&cobra.Command{
			Use:   "consume",
			Short: "Store orders consumed from Kafka",
			RunE:  c.runConsume,
		},
		c.serveCmd(),
	)
	return root
}

// withApp builds the application context for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(a *app.AppContext) error) error {
	a, err := app.NewApp(ctx, c.cfg, c.log)
	if err != nil {
		c.log.Error("failed to initialize app", zap.Error(err))
		return err
	}
	defer a.Cleanup(context.WithoutCancel(ctx))
	return fn(a)
}

func (c *cli) runPipeline(cmd *cobra.Command, _ []string) error {
	return c.withApp(cmd.Context(), func(a *app.AppContext) error {
		return reportResult(a.Pipeline.Run(cmd.Context(), app.RunOptions{}), c.log)
	})
}

func (c *cli) runForecast(cmd *cobra.Command, _ []string) error {
	return c.withApp(cmd.Context(), func(a *app.AppContext) error {
		return reportResult(a.Pipeline.Run(cmd.Context(), app.RunOptions{SkipRollup: true}), c.log)
	})
}

func reportResult(report *model.RunReport, log *zap.Logger) error {
	log.Info("run finished",
		zap.String("stage", string(report.Stage())),
		zap.Int("rolled_up", report.RolledUp),
		zap.Int("succeeded", report.Count(model.PairSucceeded)),
		zap.Int("skipped", report.Count(model.PairSkipped)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	if report.Failed() {
		if report.Err != nil {
			return fmt.Errorf("run failed: %w", report.Err)
		}
		return errors.New("run failed: some forecasts could not be stored")
	}
	return nil
}

// parseDay reads a YYYY-MM-DD flag value. Empty means today in UTC.
func parseDay(value string) (time.Time, error) {
	if value == "" {
		return model.DateOf(time.Now()), nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", value)
	}
	return day, nil
}

func (c *cli) aggregateCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute daily rollups, for one date or the whole history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day *time.Time
			if date != "" {
				d, err := parseDay(date)
				if err != nil {
					return err
				}
				day = &d
			}
			return c.withApp(cmd.Context(), func(a *app.AppContext) error {
				n, err := a.Rollup.Rollup(cmd.Context(), day)
				if err != nil {
					return err
				}
				c.log.Info("daily metrics updated", zap.Int("rows", n))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC date to aggregate (YYYY-MM-DD); all dates when empty")
	return cmd
}

func (c *cli) simulateCmd() *cobra.Command {
	var (
		date string
		seed uint64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Store one day of synthetic orders with calendar-driven volume",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.AppContext) error {
				orders := utils.NewOrderGenerator(seed).SimulateDay(day)
				stored, err := a.Orders.IngestOrders(cmd.Context(), orders)
				if err != nil {
					return err
				}
				c.log.Info("simulated orders stored",
					zap.String("date", day.Format(time.DateOnly)),
					zap.Int64("orders", stored),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC date to simulate (YYYY-MM-DD); today when empty")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; random when 0")
	return cmd
}

func (c *cli) backfillCmd() *cobra.Command {
	var (
		days, perDay int
		seed         uint64
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Store synthetic order history ending today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 || perDay <= 0 {
				return errors.New("--days and --per-day must be positive")
			}
			return c.withApp(cmd.Context(), func(a *app.AppContext) error {
				orders := utils.NewOrderGenerator(seed).Backfill(time.Now().UTC(), days, perDay)
				stored, err := a.Orders.IngestOrders(cmd.Context(), orders)
				if err != nil {
					return err
				}
				c.log.Info("backfill stored", zap.Int("days", days), zap.Int64("orders", stored))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "number of days to generate")
	cmd.Flags().IntVar(&perDay, "per-day", 200, "orders per day")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; random when 0")
	return cmd
}

func (c *cli) produceCmd() *cobra.Command {
	var (
		interval time.Duration
		batch    int
	)
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish synthetic orders to Kafka until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch <= 0 || interval <= 0 {
				return errors.New("--batch and --interval must be positive")
			}
			producer := queue.NewKafkaProducer(queue.KafkaConfig{
				Brokers: c.cfg.KafkaBrokers,
				Topic:   c.cfg.KafkaTopic,
			})
			defer producer.Close()
			uc := service.NewOrderProducerUseCase(producer, c.log)
			gen := utils.NewOrderGenerator(0)

			ctx := cmd.Context()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			c.log.Info("publishing orders", zap.String("topic", c.cfg.KafkaTopic), zap.Duration("interval", interval))
			for {
				select {
				case <-ctx.Done():
					c.log.Info("producer stopped")
					return nil
				case now := <-ticker.C:
					if err := uc.Execute(ctx, gen.Random(now, batch)...); err != nil && ctx.Err() == nil {
						c.log.Warn("failed to publish orders", zap.Error(err))
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between batches")
	cmd.Flags().IntVar(&batch, "batch", 100, "orders per batch")
	return cmd
}

func (c *cli) runConsume(cmd *cobra.Command, _ []string) error {
	return c.withApp(cmd.Context(), func(a *app.AppContext) error {
		err := a.KafkaProcessor().Run(cmd.Context())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func (c *cli) serveCmd() *cobra.Command {
	var withKafka bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run the pipeline on REFRESH_INTERVAL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.AppContext) error {
				return serve(cmd.Context(), a, withKafka)
			})
		},
	}
	cmd.Flags().BoolVar(&withKafka, "with-kafka", false, "also consume orders from Kafka")
	return cmd
}

func serve(ctx context.Context, a *app.AppContext, withKafka bool) error {
	deps := api.ServerDeps{
		Dashboard:      a.Dashboard,
		Runs:           a.Scheduler,
		WebSocket:      a.Broadcaster.Handler(),
		Checks:         a.Checks(),
		Regions:        a.Regions,
		AllowedOrigins: a.Config.AllowedOrigins,
	}
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	if a.Config.TracingEnabled {
		deps.ServiceName = app.ServiceName
	}
	server := api.NewServer(":"+a.Config.HTTPPort, deps, a.Log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.Scheduler.RunForever(gctx)
	})
	if withKafka {
		g.Go(func() error {
			err := a.KafkaProcessor().Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	a.Log.Info("service stopped")
	return err
}
