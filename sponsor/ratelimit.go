package sponsor

import (
	"strings"
	"sync"
	"time"
)

const (
	dailyWindow  = 24 * time.Hour
	hourlyWindow = time.Hour
)

// Limits are the per-wallet sponsorship ceilings.
type Limits struct {
	MaxPerDay  int
	MaxPerHour int
}

// Remaining reports the quota left in each window after a reservation.
type Remaining struct {
	Daily  int
	Hourly int
}

// Usage is the read-only view returned for introspection.
type Usage struct {
	UsedDaily       int
	UsedHourly      int
	RemainingDaily  int
	RemainingHourly int
}

// walletRecord is the rolling per-wallet state: two ordered timestamp lists,
// pruned lazily on every check. Records decay to empty lists but are never
// deleted wholesale.
type walletRecord struct {
	mu     sync.Mutex
	daily  []time.Time
	hourly []time.Time
}

// SlidingLimiter enforces per-wallet sliding-window sponsorship limits.
// The check-then-record sequence is a critical section per wallet key, so
// two concurrent requests for the same wallet can never both take the last
// slot. Requests for distinct wallets do not contend beyond the map lookup.
type SlidingLimiter struct {
	mu      sync.Mutex // guards records map only
	records map[string]*walletRecord
	limits  Limits
	now     func() time.Time
}

// NewSlidingLimiter creates a limiter with the given ceilings.
func NewSlidingLimiter(limits Limits) *SlidingLimiter {
	return &SlidingLimiter{
		records: make(map[string]*walletRecord),
		limits:  limits,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (l *SlidingLimiter) SetClock(now func() time.Time) {
	l.now = now
}

// Reserve checks both windows for the wallet and, if both have room, spends
// one slot in each and returns the remaining quota. The hourly window is
// checked first; an hourly rejection never touches the daily list. A
// rejection records nothing.
func (l *SlidingLimiter) Reserve(address string) (Remaining, error) {
	rec := l.record(address)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := l.now()
	rec.hourly = pruneOlder(rec.hourly, now.Add(-hourlyWindow))
	if len(rec.hourly) >= l.limits.MaxPerHour {
		return Remaining{}, reject(CategoryRateLimit,
			"hourly sponsorship limit reached (%d per hour)", l.limits.MaxPerHour)
	}

	rec.daily = pruneOlder(rec.daily, now.Add(-dailyWindow))
	if len(rec.daily) >= l.limits.MaxPerDay {
		return Remaining{}, reject(CategoryRateLimit,
			"daily sponsorship limit reached (%d per day)", l.limits.MaxPerDay)
	}

	rec.hourly = append(rec.hourly, now)
	rec.daily = append(rec.daily, now)

	return Remaining{
		Daily:  l.limits.MaxPerDay - len(rec.daily),
		Hourly: l.limits.MaxPerHour - len(rec.hourly),
	}, nil
}

// Usage returns the wallet's current window counts without mutating its
// lists; the introspection endpoint must stay side-effect free.
func (l *SlidingLimiter) Usage(address string) Usage {
	rec := l.record(address)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := l.now()
	usedDaily := countSince(rec.daily, now.Add(-dailyWindow))
	usedHourly := countSince(rec.hourly, now.Add(-hourlyWindow))

	return Usage{
		UsedDaily:       usedDaily,
		UsedHourly:      usedHourly,
		RemainingDaily:  max(l.limits.MaxPerDay-usedDaily, 0),
		RemainingHourly: max(l.limits.MaxPerHour-usedHourly, 0),
	}
}

// Limits returns the configured ceilings.
func (l *SlidingLimiter) Limits() Limits {
	return l.limits
}

// record returns the wallet's record, creating it on first use. Addresses
// are normalized to lower case so checksum variants share one record.
func (l *SlidingLimiter) record(address string) *walletRecord {
	key := strings.ToLower(address)
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		rec = &walletRecord{}
		l.records[key] = rec
	}
	return rec
}

// pruneOlder drops timestamps at or before the cutoff. The lists are
// append-only ordered, so the retained suffix starts at the first entry
// inside the window.
func pruneOlder(ts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(ts) && !ts[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return ts
	}
	return append(ts[:0], ts[idx:]...)
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
