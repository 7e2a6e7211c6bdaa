package refresher

import (
	"context"
	"fmt"

	"procqueue/internal/queue"
)

// Disabler turns off a schedule.
type Disabler interface {
	DisableSchedule(ctx context.Context, name, reason string) error
}

// DisableOnBan returns a ban hook that disables the schedule behind a banned
// schedule item. Other items are ignored.
func DisableOnBan(store Disabler) queue.BanHook {
	return func(ctx context.Context, item *queue.Item) error {
		if item == nil || item.Broker != queue.ScheduleBroker {
			return nil
		}
		payload, err := queue.DecodePayload(item.Payload)
		if err != nil {
			return err
		}
		if payload.Record == "" {
			return nil
		}
		reason := fmt.Sprintf("item %s banned after exhausting %d attempts", item.Hash, item.MaxAttempts)
		return store.DisableSchedule(ctx, payload.Record, reason)
	}
}
