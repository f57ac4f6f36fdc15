package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
)

func TestAssistedIsNeverLimited(t *testing.T) {
	l := NewLimiter(1, 1, arbor.NewLogger())

	for i := 0; i < 20; i++ {
		assert.NoError(t, l.Check("user_1", models.ModeAssisted))
		l.Record("user_1", models.ModeAssisted)
	}
	assert.Equal(t, 0, l.Usage("user_1").AutomatedUsed)
}

func TestAutoCapDeniesSixthAttempt(t *testing.T) {
	l := NewLimiter(10, 5, arbor.NewLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user_1", models.ModeAuto))
		l.Record("user_1", models.ModeAuto)
	}

	err := l.Check("user_1", models.ModeAuto)
	require.Error(t, err)

	var denial *Denial
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, 5, denial.Limit)
	assert.Equal(t, "day (AUTO mode)", denial.Period)
	assert.True(t, denial.ResetAt.After(time.Now()))

	// semi_auto still permitted while the combined total is below 10
	assert.NoError(t, l.Check("user_1", models.ModeSemiAuto))
}

func TestCombinedCapCoversBothModes(t *testing.T) {
	l := NewLimiter(10, 5, arbor.NewLogger())

	for i := 0; i < 5; i++ {
		l.Record("user_1", models.ModeAuto)
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("user_1", models.ModeSemiAuto))
		l.Record("user_1", models.ModeSemiAuto)
	}

	err := l.Check("user_1", models.ModeSemiAuto)
	require.Error(t, err)

	var denial *Denial
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, 10, denial.Limit)
	assert.Equal(t, "day", denial.Period)
}

func TestCountersAreScopedPerUser(t *testing.T) {
	l := NewLimiter(10, 5, arbor.NewLogger())

	for i := 0; i < 5; i++ {
		l.Record("user_1", models.ModeAuto)
	}
	assert.Error(t, l.Check("user_1", models.ModeAuto))
	assert.NoError(t, l.Check("user_2", models.ModeAuto))
}

func TestCountersResetAtMidnight(t *testing.T) {
	l := NewLimiter(10, 5, arbor.NewLogger())

	current := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		l.Record("user_1", models.ModeAuto)
	}
	require.Error(t, l.Check("user_1", models.ModeAuto))

	current = current.Add(2 * time.Hour)
	assert.NoError(t, l.Check("user_1", models.ModeAuto))
	assert.Equal(t, 0, l.Usage("user_1").AutoUsed)
}

func TestUsageReportsRemainingBudgets(t *testing.T) {
	l := NewLimiter(10, 5, arbor.NewLogger())

	l.Record("user_1", models.ModeAuto)
	l.Record("user_1", models.ModeSemiAuto)
	l.Record("user_1", models.ModeSemiAuto)

	usage := l.Usage("user_1")
	assert.Equal(t, 3, usage.AutomatedUsed)
	assert.Equal(t, 7, usage.AutomatedRemaining)
	assert.Equal(t, 1, usage.AutoUsed)
	assert.Equal(t, 4, usage.AutoRemaining)
}
