package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sticky-bot/utils"
)

// CleanupExpiredRepeaters deletes stored repeaters whose age or trigger budget
// ran out, including disabled ones that no runner will ever sweep.
func CleanupExpiredRepeaters(ctx context.Context, store *RepeaterDB, now time.Time) {
	log.Info().Msg("starting cleanup of expired repeaters")

	n, err := store.PurgeExpired(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("cleanup of expired repeaters failed")
		utils.Error("CleanupExpiredRepeaters", "Cleanup", err.Error())
		return
	}
	if n > 0 {
		utils.Info("CleanupExpiredRepeaters", "Cleanup", fmt.Sprintf("Removed %d expired repeaters", n))
	}
	log.Info().Int64("removed", n).Msg("finished cleanup of expired repeaters")
}
