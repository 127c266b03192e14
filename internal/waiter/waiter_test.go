package waiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioprov/internal/controlplane"
)

// fakeClock advances instantly and records every sleep.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func testConfig(clock Clock) Config {
	return Config{
		Clock:              clock,
		Interval:           5 * time.Second,
		ConflictRetryDelay: 10 * time.Second,
		SettleDelay:        10 * time.Second,
	}
}

func TestRetryOnConflictSucceedsAfterNConflicts(t *testing.T) {
	clock := newFakeClock()
	conflicts := 3
	calls := 0

	err := RetryOnConflict(context.Background(), testConfig(clock), func() error {
		calls++
		if calls <= conflicts {
			return controlplane.NewConflictError("domain", "d-123")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, conflicts+1, calls)
	assert.Len(t, clock.sleeps, conflicts, "expected one sleep per conflict")
	for _, d := range clock.sleeps {
		assert.Equal(t, 10*time.Second, d)
	}
}

func TestRetryOnConflictRawProviderWording(t *testing.T) {
	clock := newFakeClock()
	calls := 0

	err := RetryOnConflict(context.Background(), testConfig(clock), func() error {
		calls++
		if calls == 1 {
			return errors.New("Domain d-1 is already being updated")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictPropagatesOtherErrors(t *testing.T) {
	clock := newFakeClock()
	boom := errors.New("access denied")

	err := RetryOnConflict(context.Background(), testConfig(clock), func() error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, clock.sleeps)
}

func TestRetryOnConflictStopsOnContextCancel(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := RetryOnConflict(ctx, testConfig(clock), func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return controlplane.NewConflictError("domain", "d-123")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollReturnsPayloadOnTarget(t *testing.T) {
	clock := newFakeClock()
	statuses := []string{"Pending", "Pending", "InService"}
	i := 0

	payload, err := Poll(context.Background(), testConfig(clock), "domain d-123",
		func(context.Context) (string, error) {
			s := statuses[i]
			i++
			return s, nil
		},
		func(s string) string { return s },
		"InService",
	)

	require.NoError(t, err)
	assert.Equal(t, "InService", payload)
	assert.Len(t, clock.sleeps, 2)
}

func TestPollFailureStatusIsTerminal(t *testing.T) {
	clock := newFakeClock()

	_, err := Poll(context.Background(), testConfig(clock), "domain d-123",
		func(context.Context) (string, error) { return "Update_Failed", nil },
		func(s string) string { return s },
		"InService",
	)

	var terminal *TerminalFailureError
	require.ErrorAs(t, err, &terminal)
	assert.Contains(t, terminal.Error(), "d-123")
	assert.Contains(t, terminal.Error(), "Update_Failed")
}

func TestPollDescribeErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	boom := errors.New("throttled")

	_, err := Poll(context.Background(), testConfig(clock), "domain d-123",
		func(context.Context) (string, error) { return "", boom },
		func(s string) string { return s },
		"InService",
	)

	assert.ErrorIs(t, err, boom)
}

func TestPollMaxWait(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(clock)
	cfg.MaxWait = 12 * time.Second

	_, err := Poll(context.Background(), cfg, "domain d-123",
		func(context.Context) (string, error) { return "Pending", nil },
		func(s string) string { return s },
		"InService",
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestPollUntilGoneNotFoundIsSuccess(t *testing.T) {
	clock := newFakeClock()
	polls := 0

	err := PollUntilGone(context.Background(), testConfig(clock), "domain d-123",
		func(context.Context) (string, error) {
			polls++
			if polls < 3 {
				return "Deleting", nil
			}
			return "", controlplane.NewNotFoundError("domain", "d-123")
		},
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 3, polls)
}

func TestPollUntilGoneVerifyRejectsStalledStatus(t *testing.T) {
	clock := newFakeClock()

	err := PollUntilGone(context.Background(), testConfig(clock), "user profile alice",
		func(context.Context) (string, error) { return "InService", nil },
		func(status string) error {
			if status != "Deleting" {
				return errors.New("no longer Deleting but not deleted")
			}
			return nil
		},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not deleted")
}

func TestIsFailureStatus(t *testing.T) {
	assert.True(t, IsFailureStatus("Failed"))
	assert.True(t, IsFailureStatus("Create_Failed"))
	assert.True(t, IsFailureStatus("failing"))
	assert.False(t, IsFailureStatus("InService"))
	assert.False(t, IsFailureStatus("Deleting"))
}

func TestSettleSleepsConfiguredDelay(t *testing.T) {
	clock := newFakeClock()
	Settle(testConfig(clock))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 10*time.Second, clock.sleeps[0])
}
