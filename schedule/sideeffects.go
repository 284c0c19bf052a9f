/*
sideeffects.go - Post-run collaborator notification

PURPOSE:
  Expense generation invalidates two derived datasets owned by external
  collaborators: per-vehicle financial statistics (keyed by car+currency)
  and maintenance-interval projections (keyed by car+kind). Recalculating
  either is expensive, so a run collects the affected pairs into a set and
  dispatches each distinct pair exactly once after the run - never once per
  schedule, never once per expense.

  Dispatch failures are logged and counted but never fail the run: the
  expenses themselves are already committed, and the next recalculation
  will self-heal.
*/
package schedule

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

type statsKey struct {
	CarID    string
	Currency string
}

type intervalKey struct {
	CarID  string
	KindID string
}

// EffectSet accumulates the distinct recalculation pairs of one run.
type EffectSet struct {
	stats     map[statsKey]struct{}
	intervals map[intervalKey]struct{}

	// Home-currency lookups memoized per user within the run.
	resolvedCurrency map[string]string
}

// DispatchResult counts what one flush did.
type DispatchResult struct {
	StatsUpdates    int
	IntervalUpdates int
	Failures        int
}

// SideEffectCoordinator deduplicates and dispatches recalculation requests.
type SideEffectCoordinator struct {
	Stats    StatsRecalculator
	Currency CurrencyResolver
	Logger   zerolog.Logger
}

func NewSideEffectCoordinator(stats StatsRecalculator, currency CurrencyResolver, logger zerolog.Logger) *SideEffectCoordinator {
	return &SideEffectCoordinator{Stats: stats, Currency: currency, Logger: logger}
}

// NewSet returns an empty per-run effect set.
func (c *SideEffectCoordinator) NewSet() *EffectSet {
	return &EffectSet{
		stats:            make(map[statsKey]struct{}),
		intervals:        make(map[intervalKey]struct{}),
		resolvedCurrency: make(map[string]string),
	}
}

// ResolveCurrency returns the schedule's currency, falling back to the
// owner's home currency. Lookups are memoized per user inside the set.
func (c *SideEffectCoordinator) ResolveCurrency(ctx context.Context, set *EffectSet, sched *ExpenseSchedule) string {
	if sched.Currency != "" {
		return sched.Currency
	}
	if cur, ok := set.resolvedCurrency[sched.UserID]; ok {
		return cur
	}
	cur, err := c.Currency.ResolveHomeCurrency(ctx, sched.UserID)
	if err != nil {
		c.Logger.Warn().Err(err).Str("user_id", sched.UserID).Msg("home currency lookup failed")
		cur = ""
	}
	set.resolvedCurrency[sched.UserID] = cur
	return cur
}

// Collect records the pairs a schedule's run affected.
func (c *SideEffectCoordinator) Collect(set *EffectSet, sched *ExpenseSchedule, currency string) {
	set.stats[statsKey{CarID: sched.CarID, Currency: currency}] = struct{}{}
	if sched.Template.KindID != "" {
		set.intervals[intervalKey{CarID: sched.CarID, KindID: sched.Template.KindID}] = struct{}{}
	}
}

// Dispatch invokes each collaborator once per distinct pair. Stable order
// keeps logs and tests deterministic.
func (c *SideEffectCoordinator) Dispatch(ctx context.Context, set *EffectSet) DispatchResult {
	var res DispatchResult

	statsKeys := make([]statsKey, 0, len(set.stats))
	for k := range set.stats {
		statsKeys = append(statsKeys, k)
	}
	sort.Slice(statsKeys, func(i, j int) bool {
		if statsKeys[i].CarID != statsKeys[j].CarID {
			return statsKeys[i].CarID < statsKeys[j].CarID
		}
		return statsKeys[i].Currency < statsKeys[j].Currency
	})

	for _, k := range statsKeys {
		if err := c.Stats.RecalculateCarStats(ctx, k.CarID, k.Currency); err != nil {
			res.Failures++
			c.Logger.Error().Err(err).
				Str("car_id", k.CarID).
				Str("currency", k.Currency).
				Msg("car stats recalculation failed")
			continue
		}
		res.StatsUpdates++
	}

	intervalKeys := make([]intervalKey, 0, len(set.intervals))
	for k := range set.intervals {
		intervalKeys = append(intervalKeys, k)
	}
	sort.Slice(intervalKeys, func(i, j int) bool {
		if intervalKeys[i].CarID != intervalKeys[j].CarID {
			return intervalKeys[i].CarID < intervalKeys[j].CarID
		}
		return intervalKeys[i].KindID < intervalKeys[j].KindID
	})

	for _, k := range intervalKeys {
		if err := c.Stats.RecalculateServiceInterval(ctx, k.CarID, k.KindID); err != nil {
			res.Failures++
			c.Logger.Error().Err(err).
				Str("car_id", k.CarID).
				Str("kind_id", k.KindID).
				Msg("service interval recalculation failed")
			continue
		}
		res.IntervalUpdates++
	}

	return res
}
