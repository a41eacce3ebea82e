package treatment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stats summarizes a doctor's treatments. Status and type counts cover every
// treatment the doctor owns; averages cover only is_active ones.
func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	entry := s.statsEntry(ctx, doctorID)
	if st, ok := s.cachedStats(ctx, entry); ok {
		return st, nil
	}

	statuses, err := s.treatments.CountByDoctorAndStatus(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	types, err := s.treatments.CountByDoctorAndType(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	active, err := s.treatments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list active treatments: %w", err)
	}

	st := &Stats{
		Active:    statuses[StatusActive],
		Completed: statuses[StatusCompleted],
		Suspended: statuses[StatusSuspended],
		Paused:    statuses[StatusSuspended],
		ByType:    make(map[Type]int),
		AverageEffectiveness: average(active, func(t *Treatment) *Percentage {
			return t.Effectiveness
		}),
		AverageAdherence: average(active, func(t *Treatment) *Percentage {
			return t.Adherence
		}),
	}
	for tp, n := range types {
		if n > 0 {
			st.ByType[tp] = n
		}
	}

	s.storeStats(ctx, entry, st)
	return st, nil
}

// average sums the non-null values and divides by the number of treatments,
// nulls included, rounding half up to two places.
func average(items []*Treatment, field func(*Treatment) *Percentage) Percentage {
	sum := decimal.Zero
	for _, t := range items {
		if p := field(t); p != nil {
			sum = sum.Add(p.Decimal)
		}
	}
	n := int64(len(items))
	if n < 1 {
		n = 1
	}
	return Percentage{Decimal: sum.DivRound(decimal.NewFromInt(n), 2)}
}
