package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
)

// Denial explains a refused application attempt
type Denial struct {
	Limit   int       `json:"limit"`
	Period  string    `json:"period"`
	ResetAt time.Time `json:"reset_at"`
}

func (d *Denial) Error() string {
	return fmt.Sprintf("daily limit of %d reached for %s, resets %s", d.Limit, d.Period, d.ResetAt.Format(time.RFC3339))
}

// Usage reports a user's consumption against both caps
type Usage struct {
	AutomatedUsed      int `json:"automated_used"`
	AutomatedRemaining int `json:"automated_remaining"`
	AutoUsed           int `json:"auto_used"`
	AutoRemaining      int `json:"auto_remaining"`
}

// dayKey identifies one counter bucket
type dayKey struct {
	userID string
	mode   models.ExecutionMode
	day    string // YYYY-MM-DD in local time
}

// Limiter enforces daily per-user application caps: a combined cap on
// automated modes (semi_auto + auto) and a tighter cap on auto alone.
// Assisted applications are never limited.
type Limiter struct {
	mu       sync.Mutex
	counters map[dayKey]int

	maxAutomatedPerDay int
	maxAutoPerDay      int

	now    func() time.Time
	logger arbor.ILogger
}

// NewLimiter creates a limiter with the given daily caps
func NewLimiter(maxAutomatedPerDay, maxAutoPerDay int, logger arbor.ILogger) *Limiter {
	if maxAutomatedPerDay <= 0 {
		maxAutomatedPerDay = 10
	}
	if maxAutoPerDay <= 0 {
		maxAutoPerDay = 5
	}
	return &Limiter{
		counters:           make(map[dayKey]int),
		maxAutomatedPerDay: maxAutomatedPerDay,
		maxAutoPerDay:      maxAutoPerDay,
		now:                time.Now,
		logger:             logger,
	}
}

// Check reports whether the user may start an application in the given
// mode today. Returns a *Denial (as error) naming the limit, period,
// and reset time when refused.
func (l *Limiter) Check(userID string, mode models.ExecutionMode) error {
	if mode == models.ModeAssisted {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if mode == models.ModeAuto && l.count(userID, models.ModeAuto) >= l.maxAutoPerDay {
		return &Denial{
			Limit:   l.maxAutoPerDay,
			Period:  "day (AUTO mode)",
			ResetAt: l.nextMidnight(),
		}
	}

	if l.automatedTotal(userID) >= l.maxAutomatedPerDay {
		return &Denial{
			Limit:   l.maxAutomatedPerDay,
			Period:  "day",
			ResetAt: l.nextMidnight(),
		}
	}
	return nil
}

// Record counts one started application against today's budgets
func (l *Limiter) Record(userID string, mode models.ExecutionMode) {
	if mode == models.ModeAssisted {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := dayKey{userID: userID, mode: mode, day: l.today()}
	l.counters[key]++

	l.logger.Debug().
		Str("user_id", userID).
		Str("mode", string(mode)).
		Int("count", l.counters[key]).
		Msg("Application counted against daily budget")
}

// Usage returns the user's consumption and remaining budgets for today
func (l *Limiter) Usage(userID string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	auto := l.count(userID, models.ModeAuto)
	total := l.automatedTotal(userID)

	return Usage{
		AutomatedUsed:      total,
		AutomatedRemaining: max(0, l.maxAutomatedPerDay-total),
		AutoUsed:           auto,
		AutoRemaining:      max(0, l.maxAutoPerDay-auto),
	}
}

func (l *Limiter) count(userID string, mode models.ExecutionMode) int {
	return l.counters[dayKey{userID: userID, mode: mode, day: l.today()}]
}

func (l *Limiter) automatedTotal(userID string) int {
	return l.count(userID, models.ModeSemiAuto) + l.count(userID, models.ModeAuto)
}

func (l *Limiter) today() string {
	return l.now().Format("2006-01-02")
}

func (l *Limiter) nextMidnight() time.Time {
	now := l.now()
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}
