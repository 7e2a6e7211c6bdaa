package refresher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procqueue/internal/config"
	"procqueue/internal/logging"
	"procqueue/internal/queue"
	"procqueue/internal/refresher"
	"procqueue/internal/testsupport"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func nightly() config.Schedule {
	priority := 2
	return config.Schedule{
		Name:     "nightly",
		Spec:     "0 3 * * *",
		Queue:    "cron",
		Task:     "command",
		Record:   "true",
		Priority: &priority,
		Attempts: 3,
	}
}

func TestRunSchedulesThenPublishes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedules(nightly()))
	store := testsupport.MustOpenStore(t, cfg)
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ref := refresher.New(store, cfg, logging.NewNop(), refresher.WithClock(clk.Now))
	ctx := context.Background()

	result, err := ref.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly"}, result.Scheduled)
	assert.Empty(t, result.Published)

	state, err := store.ScheduleState(ctx, "nightly")
	require.NoError(t, err)
	assert.True(t, state.NextRun.Equal(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)), "next run %s", state.NextRun)
	assert.True(t, state.LastPublished.IsZero())

	clk.now = time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	result, err = ref.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Published, "not due yet")

	clk.now = time.Date(2026, 3, 2, 3, 0, 5, 0, time.UTC)
	result, err = ref.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly"}, result.Published)

	item, err := store.GetByHash(ctx, "schedule_nightly")
	require.NoError(t, err)
	assert.Equal(t, "cron", item.Queue)
	assert.Equal(t, queue.ScheduleBroker, item.Broker)
	assert.Equal(t, 2, item.Priority)
	assert.Equal(t, 3, item.MaxAttempts)

	state, err = store.ScheduleState(ctx, "nightly")
	require.NoError(t, err)
	assert.True(t, state.NextRun.Equal(time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)), "next run %s", state.NextRun)
	assert.True(t, state.LastPublished.Equal(clk.now), "last published %s", state.LastPublished)
}

func TestRunSkipsDisabledSchedules(t *testing.T) {
	off := nightly()
	off.Name = "off"
	off.Disabled = true
	cfg := testsupport.NewConfig(t, testsupport.WithSchedules(nightly(), off))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	require.NoError(t, store.DisableSchedule(ctx, "nightly", "banned"))

	ref := refresher.New(store, cfg, logging.NewNop())
	result, err := ref.Run(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"nightly", "off"}, result.Skipped)
	assert.Empty(t, result.Scheduled)
}

func TestRunContinuesPastBrokenSchedule(t *testing.T) {
	broken := nightly()
	broken.Name = "broken"
	broken.Spec = "not a spec"
	cfg := testsupport.NewConfig(t, testsupport.WithSchedules(broken, nightly()))
	store := testsupport.MustOpenStore(t, cfg)

	result, err := refresher.New(store, cfg, logging.NewNop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule broken")
	assert.Equal(t, []string{"nightly"}, result.Scheduled)
}

func TestDisableOnBanDisablesScheduleItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedules(nightly()))
	store := testsupport.MustOpenStore(t, cfg)
	store.SetBanHook(refresher.DisableOnBan(store))
	ctx := context.Background()

	item, err := store.Publish(ctx, queue.ScheduleRequest(cfg.Items, nightly()), "cron")
	require.NoError(t, err)
	require.NoError(t, store.Ban(ctx, item))

	state, err := store.ScheduleState(ctx, "nightly")
	require.NoError(t, err)
	assert.True(t, state.Disabled)
	assert.Contains(t, state.DisabledReason, "schedule_nightly")

	plain := testsupport.Publish(t, store, cfg, "cron", "command", "true", nil)
	require.NoError(t, store.Ban(ctx, plain))
	other, err := store.ScheduleState(ctx, "true")
	require.NoError(t, err)
	assert.False(t, other.Disabled)
}
