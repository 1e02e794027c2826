package dedupe

import (
	"fmt"
	"time"

	"github.com/sdejongh/tfm/pkg/models"
)

// keepFunc picks the member that survives. Members are never empty.
type keepFunc func(members []models.FileEntry) string

var strategies = map[models.Strategy]keepFunc{
	models.StrategyNewest: keepNewest,
	models.StrategyOldest: keepOldest,
	// members share their size, so size-based choices fall back to newest
	models.StrategyLargest:  keepNewest,
	models.StrategySmallest: keepNewest,
}

// keepNewest keeps the latest modification time; ties go to the
// lexicographically smallest path
func keepNewest(members []models.FileEntry) string {
	best := members[0]
	for _, m := range members[1:] {
		if m.ModTime.After(best.ModTime) || (m.ModTime.Equal(best.ModTime) && m.Path < best.Path) {
			best = m
		}
	}
	return best.Path
}

// keepOldest keeps the earliest modification time, same tie-break
func keepOldest(members []models.FileEntry) string {
	best := members[0]
	for _, m := range members[1:] {
		if m.ModTime.Before(best.ModTime) || (m.ModTime.Equal(best.ModTime) && m.Path < best.Path) {
			best = m
		}
	}
	return best.Path
}

// Decision is the keep/remove split for one group
type Decision struct {
	models.ResolutionDecision
}

// Resolve applies strategy to group. The interactive strategy returns a
// pending decision that Choose completes.
func Resolve(group *models.DuplicateGroup, strategy models.Strategy) (*Decision, error) {
	if group == nil || len(group.Members) == 0 {
		return nil, fmt.Errorf("cannot resolve an empty group")
	}

	d := &Decision{models.ResolutionDecision{Group: group, Strategy: strategy}}

	if strategy == models.StrategyInteractive {
		d.Pending = true
		return d, nil
	}

	keep, ok := strategies[strategy]
	if !ok {
		return nil, &models.ValidationError{Field: "strategy", Message: "unknown strategy: " + string(strategy)}
	}

	d.decide(keep(group.Members))
	return d, nil
}

// Choose completes a decision by naming the member to keep
func (d *Decision) Choose(path string) error {
	if _, ok := d.Group.Member(path); !ok {
		return fmt.Errorf("%s is not a member of the group: %w", path, models.ErrPathNotFound)
	}
	d.decide(path)
	return nil
}

func (d *Decision) decide(keep string) {
	d.Keep = keep
	d.Remove = d.Remove[:0]
	for _, m := range d.Group.Members {
		if m.Path != keep {
			d.Remove = append(d.Remove, m.Path)
		}
	}
	d.Pending = false
	d.DecidedAt = time.Now()
}

// Requests turns the removals into reversible delete requests
func (d *Decision) Requests() ([]models.OperationRequest, error) {
	if d.Pending {
		return nil, models.ErrDecisionPending
	}
	reqs := make([]models.OperationRequest, len(d.Remove))
	for i, path := range d.Remove {
		reqs[i] = models.OperationRequest{Kind: models.KindDelete, Source: path}
	}
	return reqs, nil
}
