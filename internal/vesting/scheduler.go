package vesting

import (
	"time"

	"vestfolio/internal/models"
)

// Scheduler generates and regenerates vesting schedules from the plan
// registry. All methods are pure; persistence belongs to the caller.
type Scheduler struct {
	registry *Registry
}

func NewScheduler(r *Registry) *Scheduler {
	return &Scheduler{registry: r}
}

func (s *Scheduler) Plans() []models.VestingPlanInfo { return s.registry.List() }

func (s *Scheduler) Plan(id string) (Plan, error) { return s.registry.Lookup(id) }

// Generate validates the inputs and produces the full schedule for a new
// grant under the named plan.
func (s *Scheduler) Generate(grantDate time.Time, totalShares int64, planID string) ([]models.ScheduleEntry, error) {
	if totalShares <= 0 {
		return nil, &ErrInvalidGrantInput{Field: "total_shares", Reason: "must be positive"}
	}
	if grantDate.IsZero() {
		return nil, &ErrInvalidGrantInput{Field: "grant_date", Reason: "is required"}
	}
	plan, err := s.registry.Lookup(planID)
	if err != nil {
		return nil, err
	}
	return plan.Generate(grantDate, totalShares), nil
}

// PreviewPlanChange reports the impact of moving a grant to a new plan
// without producing the replacement schedule.
func (s *Scheduler) PreviewPlanChange(grant models.Grant, schedule []models.ScheduleEntry, newPlanID string, asOf time.Time) (models.PlanChangePreview, error) {
	preview, _, err := s.planChange(grant, schedule, newPlanID, asOf)
	return preview, err
}

// ChangePlan keeps every vested entry untouched and redistributes the
// unvested remainder on the new plan's cadence. Fails with ErrAlreadyVested
// when nothing remains to redistribute.
func (s *Scheduler) ChangePlan(grant models.Grant, schedule []models.ScheduleEntry, newPlanID string, asOf time.Time) ([]models.ScheduleEntry, models.PlanChangePreview, error) {
	preview, entries, err := s.planChange(grant, schedule, newPlanID, asOf)
	return entries, preview, err
}

func (s *Scheduler) planChange(grant models.Grant, schedule []models.ScheduleEntry, newPlanID string, asOf time.Time) (models.PlanChangePreview, []models.ScheduleEntry, error) {
	newPlan, err := s.registry.Lookup(newPlanID)
	if err != nil {
		return models.PlanChangePreview{}, nil, err
	}
	oldPlan, err := s.registry.Lookup(grant.PlanID)
	if err != nil {
		return models.PlanChangePreview{}, nil, err
	}

	var vested []models.ScheduleEntry
	var vestedShares int64
	lastVestDate := grant.GrantDate
	for _, e := range schedule {
		if e.VestDate.After(asOf) {
			continue
		}
		vested = append(vested, e)
		vestedShares += e.Shares
		if e.VestDate.After(lastVestDate) {
			lastVestDate = e.VestDate
		}
	}

	unvested := grant.TotalShares - vestedShares
	if unvested <= 0 {
		return models.PlanChangePreview{}, nil, ErrAlreadyVested
	}

	periods := newPlan.Periods() - len(vested)
	if periods < 1 {
		periods = 1
	}

	shares := distributeShares(unvested, periods)
	entries := make([]models.ScheduleEntry, 0, len(vested)+periods)
	entries = append(entries, vested...)
	for i := 0; i < periods; i++ {
		entries = append(entries, models.ScheduleEntry{
			GrantID:     grant.ID,
			PeriodIndex: len(vested) + i + 1,
			VestDate:    lastVestDate.AddDate(0, (i+1)*newPlan.CadenceMonths(), 0),
			Shares:      shares[i],
		})
	}

	preview := models.PlanChangePreview{
		OldPlanID:        oldPlan.ID(),
		OldPlanName:      oldPlan.Name(),
		NewPlanID:        newPlan.ID(),
		NewPlanName:      newPlan.Name(),
		VestedUnchanged:  vestedShares,
		UnvestedMoved:    unvested,
		OldPeriodCount:   oldPlan.Periods(),
		NewPeriodCount:   len(entries),
		FirstNewVestDate: entries[len(vested)].VestDate.Format("2006-01-02"),
	}
	return preview, entries, nil
}
