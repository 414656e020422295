package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// StatsSource is satisfied by the conversation and message link repositories.
type StatsSource interface {
	Stats(ctx context.Context) (*model.ConversationStats, error)
}

type LinkCounter interface {
	CountByDirection(ctx context.Context) (map[model.Direction]int64, error)
}

// StartDBCollectors refreshes the storage gauges until ctx is cancelled.
func StartDBCollectors(ctx context.Context, convs StatsSource, links LinkCounter, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, convs, links)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, convs, links)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, convs StatsSource, links LinkCounter) {
	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if stats, err := convs.Stats(qctx); err != nil {
		log.Debug().Err(err).Msg("metrics: conversation stats failed")
	} else {
		SetConversations("total", stats.Total)
		SetConversations("blocked", stats.Blocked)
		SetConversations("with_topic", stats.WithTopic)
	}

	counts, err := links.CountByDirection(qctx)
	if err != nil {
		log.Debug().Err(err).Msg("metrics: link counts failed")
		return
	}
	for _, d := range []model.Direction{model.DirectionToGroup, model.DirectionToUser} {
		SetMessageLinks(string(d), counts[d])
	}
}
