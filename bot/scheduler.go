package bot

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"sticky-bot/config"
	"sticky-bot/database"
)

// startScheduler starts the cron jobs.
func (b *Bot) startScheduler() {
	log.Info().Msg("initializing scheduler")
	b.scheduler = cron.New(cron.WithLocation(config.Location(b.Settings)))

	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{"@hourly", "expiry sweep", b.sweepExpired},
		{"@every 5m", "status snapshot", b.saveStatus},
	}
	for _, job := range jobs {
		if _, err := b.scheduler.AddFunc(job.spec, job.fn); err != nil {
			log.Error().Err(err).Str("job", job.name).Msg("could not set up cron job")
			continue
		}
		log.Info().Str("job", job.name).Str("spec", job.spec).Msg("cron job scheduled")
	}
	b.scheduler.Start()
}

// stopScheduler stops the cron jobs and waits for running ones.
func (b *Bot) stopScheduler() {
	if b.scheduler == nil {
		return
	}
	<-b.scheduler.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// sweepExpired removes live repeaters that expired while idle, then purges
// expired records of guilds that are not loaded.
func (b *Bot) sweepExpired() {
	if n := b.Registry.SweepExpired(); n > 0 {
		log.Info().Int("removed", n).Msg("expired runners swept")
	}
	database.CleanupExpiredRepeaters(b.ctx, b.Store, time.Now())
}

func (b *Bot) saveStatus() {
	b.Status.Update(b.Registry.Status())
	if err := b.Status.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save status")
	}
}
