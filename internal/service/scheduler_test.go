package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kathmandu(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)
	return loc
}

func TestScheduler_NextSkipsFridayAndSaturday(t *testing.T) {
	loc := kathmandu(t)
	s, err := NewScheduler("0 15 * * SUN-THU", loc, func(context.Context) {})
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 9, 0, 0, 0, loc)
	require.Equal(t, time.Friday, friday.Weekday())

	next := s.Next(friday)
	assert.True(t, next.Equal(time.Date(2026, 10, 18, 15, 0, 0, 0, loc)), "next = %s", next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestScheduler_NextUsesScheduleZone(t *testing.T) {
	loc := kathmandu(t)
	s, err := NewScheduler("0 15 * * SUN-THU", loc, func(context.Context) {})
	require.NoError(t, err)

	// 09:00 UTC Monday is 14:45 NPT, so the same day's run is next
	monday := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	next := s.Next(monday)

	assert.Equal(t, loc, next.Location())
	assert.True(t, next.Equal(time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)))
}

func TestScheduler_NextAfterThursdayRun(t *testing.T) {
	loc := kathmandu(t)
	s, err := NewScheduler("0 15 * * SUN-THU", loc, func(context.Context) {})
	require.NoError(t, err)

	thursday := time.Date(2026, 10, 22, 15, 0, 0, 0, loc)
	next := s.Next(thursday)
	assert.True(t, next.Equal(time.Date(2026, 10, 25, 15, 0, 0, 0, loc)), "next = %s", next)
}

func TestScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewScheduler("not a cron", kathmandu(t), func(context.Context) {})
	assert.Error(t, err)

	_, err = NewScheduler("0 15 * * SUN-THU", nil, func(context.Context) {})
	assert.Error(t, err)
}

func TestScheduler_StopWaitsForRunningJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	s, err := NewScheduler("@every 1s", time.UTC, func(ctx context.Context) {
		select {
		case <-started:
			return
		default:
		}
		close(started)
		<-release
		close(finished)
	})
	require.NoError(t, err)
	s.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	<-finished
}

func TestScheduler_StopHonoursDeadline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	s, err := NewScheduler("@every 1s", time.UTC, func(ctx context.Context) {
		select {
		case <-started:
			return
		default:
		}
		close(started)
		<-release
	})
	require.NoError(t, err)
	s.Start(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}
