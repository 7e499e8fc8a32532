package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker running the scheduled event lifecycle jobs`,
	RunE:  runWorker,
}

// job is one scheduled lifecycle task
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rt, err := bootstrap(cfg, "worker")
	if err != nil {
		return err
	}
	defer rt.Close()

	lifecycle := rt.services.Lifecycle
	jobs := []job{
		{"auto-close-events", cfg.Lifecycle.CloseInterval, func(ctx context.Context) (int, error) {
			return lifecycle.AutoCloseExpiredEvents(ctx, time.Now())
		}},
		{"volunteer-reminders", cfg.Lifecycle.ReminderInterval, func(ctx context.Context) (int, error) {
			return lifecycle.SendVolunteerReminders(ctx, time.Now())
		}},
		{"new-events-digest", cfg.Lifecycle.DigestInterval, func(ctx context.Context) (int, error) {
			return lifecycle.SendNewEventsDigest(ctx, time.Now())
		}},
		{"reindex-events", cfg.Lifecycle.ReindexInterval, lifecycle.ReindexEvents},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		for _, j := range jobs {
			_, err := scheduler.NewJob(
				gocron.DurationJob(j.interval),
				gocron.NewTask(func() {
					start := time.Now()
					n, err := j.run(ctx)
					rt.deps.Metrics.RecordTimer("job_"+j.name, time.Since(start))
					if err != nil {
						rt.deps.Metrics.RecordError("job_" + j.name)
						log.Error().Err(err).Str("job", j.name).Msg("Scheduled job failed")
						return
					}
					rt.deps.Metrics.RecordSuccess("job_" + j.name)
					log.Info().Str("job", j.name).Int("processed", n).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
				}),
				gocron.WithName(j.name),
				gocron.WithSingletonMode(gocron.LimitModeReschedule),
				gocron.WithStartAt(gocron.WithStartImmediately()),
			)
			if err != nil {
				return err
			}
			log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("Scheduled lifecycle job")
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
