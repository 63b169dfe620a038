package vesting

import (
	"sort"
	"time"

	"vestfolio/internal/models"
)

// Plan turns a grant date and share count into an ordered vesting schedule.
// Implementations must distribute shares with distributeShares so the
// schedule always sums to the grant's total exactly.
type Plan interface {
	ID() string
	Name() string
	Periods() int
	// CadenceMonths is the spacing between regular vesting events, used when
	// redistributing unvested shares on a plan change.
	CadenceMonths() int
	Generate(grantDate time.Time, totalShares int64) []models.ScheduleEntry
}

const (
	PlanQuarterly5yr    = "quarterly-5yr"
	PlanMonthly4yr      = "monthly-4yr"
	PlanAnnual4yr       = "annual-4yr"
	PlanCliff2yrQuarter = "cliff-2yr-quarterly"
)

// distributeShares splits total across periods, front-loading the remainder
// onto the earliest periods so the counts sum to total exactly.
func distributeShares(total int64, periods int) []int64 {
	base := total / int64(periods)
	remainder := total % int64(periods)
	out := make([]int64, periods)
	for i := range out {
		out[i] = base
		if int64(i) < remainder {
			out[i]++
		}
	}
	return out
}

// periodicPlan vests evenly spaced tranches, one per period.
type periodicPlan struct {
	id      string
	name    string
	periods int
	months  int
}

func (p *periodicPlan) ID() string         { return p.id }
func (p *periodicPlan) Name() string       { return p.name }
func (p *periodicPlan) Periods() int       { return p.periods }
func (p *periodicPlan) CadenceMonths() int { return p.months }

func (p *periodicPlan) Generate(grantDate time.Time, totalShares int64) []models.ScheduleEntry {
	shares := distributeShares(totalShares, p.periods)
	entries := make([]models.ScheduleEntry, p.periods)
	for i := 0; i < p.periods; i++ {
		entries[i] = models.ScheduleEntry{
			PeriodIndex: i + 1,
			VestDate:    grantDate.AddDate(0, (i+1)*p.months, 0),
			Shares:      shares[i],
		}
	}
	return entries
}

// cliffPlan holds back the first cliffMonths of tranches and vests them as a
// single flagged event, then continues on the regular cadence.
type cliffPlan struct {
	id          string
	name        string
	periods     int
	months      int
	cliffMonths int
}

func (p *cliffPlan) ID() string         { return p.id }
func (p *cliffPlan) Name() string       { return p.name }
func (p *cliffPlan) CadenceMonths() int { return p.months }

// Periods counts schedule entries: one cliff event plus the tail tranches.
func (p *cliffPlan) Periods() int {
	return p.periods - p.cliffMonths/p.months + 1
}

func (p *cliffPlan) Generate(grantDate time.Time, totalShares int64) []models.ScheduleEntry {
	shares := distributeShares(totalShares, p.periods)
	cliffPeriods := p.cliffMonths / p.months

	var cliffShares int64
	for i := 0; i < cliffPeriods; i++ {
		cliffShares += shares[i]
	}

	entries := make([]models.ScheduleEntry, 0, p.Periods())
	entries = append(entries, models.ScheduleEntry{
		PeriodIndex: 1,
		VestDate:    grantDate.AddDate(0, p.cliffMonths, 0),
		Shares:      cliffShares,
		CliffEvent:  true,
	})
	for i := cliffPeriods; i < p.periods; i++ {
		entries = append(entries, models.ScheduleEntry{
			PeriodIndex: len(entries) + 1,
			VestDate:    grantDate.AddDate(0, (i+1)*p.months, 0),
			Shares:      shares[i],
		})
	}
	return entries
}

// Registry holds the known vesting plans.
type Registry struct {
	plans map[string]Plan
}

// NewRegistry returns a registry with the built-in plans.
func NewRegistry() *Registry {
	r := &Registry{plans: map[string]Plan{}}
	r.Register(&periodicPlan{id: PlanQuarterly5yr, name: "Quarterly over 5 years", periods: 20, months: 3})
	r.Register(&periodicPlan{id: PlanMonthly4yr, name: "Monthly over 4 years", periods: 48, months: 1})
	r.Register(&periodicPlan{id: PlanAnnual4yr, name: "Annual over 4 years", periods: 4, months: 12})
	r.Register(&cliffPlan{id: PlanCliff2yrQuarter, name: "2-year cliff, then quarterly", periods: 20, months: 3, cliffMonths: 24})
	return r
}

func (r *Registry) Register(p Plan) { r.plans[p.ID()] = p }

func (r *Registry) Lookup(id string) (Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, &ErrUnknownPlan{ID: id}
	}
	return p, nil
}

// List returns plan descriptions sorted by id.
func (r *Registry) List() []models.VestingPlanInfo {
	out := make([]models.VestingPlanInfo, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, models.VestingPlanInfo{ID: p.ID(), Name: p.Name(), Periods: p.Periods()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
