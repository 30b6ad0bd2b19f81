package storage

import (
	"sort"

	"github.com/google/uuid"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/observability"
	"solana-strategy-engine/internal/validation"
)

// BuildCreate validates a creation input and constructs the strategy
// record plus its initial events. Shared by every backend so create
// semantics cannot drift between them.
func BuildCreate(input *domain.CreateStrategyInput, nowMs int64) (*domain.Strategy, []*domain.StrategyEvent, error) {
	if r := validation.ValidateCreate(input, nowMs); !r.Valid {
		return nil, nil, &validation.Error{Result: r}
	}

	s := domain.NewStrategy(input, uuid.NewString(), nowMs)
	events := []*domain.StrategyEvent{
		s.NewEvent(domain.EventStrategyCreated, "user", "", map[string]any{
			"strategy_type": string(s.Type),
			"name":          s.Name,
		}, nowMs),
	}

	if input.AutoActivate {
		for _, to := range []domain.StrategyStatus{domain.StatusPending, domain.StatusActive} {
			ev, err := s.ApplyTransition(to, "user", "auto-activate", nowMs)
			if err != nil {
				return nil, nil, err
			}
			events = append(events, ev)
		}
	}
	observability.RecordStrategyCreated(string(s.Type))
	return s, events, nil
}

// MatchesList reports whether a strategy passes a ListQuery's filters.
func MatchesList(s *domain.Strategy, q *ListQuery) bool {
	if q == nil {
		return true
	}
	if q.Type != nil && s.Type != *q.Type {
		return false
	}
	if q.Status != nil && s.Status != *q.Status {
		return false
	}
	return true
}

// SortStrategies orders a listing in place per the query's sort key.
// Ties fall back to strategy ID so pagination is stable.
func SortStrategies(list []*domain.Strategy, q *ListQuery) {
	sortBy, desc := "created_at", false
	if q != nil {
		if q.SortBy != "" {
			sortBy = q.SortBy
		}
		desc = q.SortDesc
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if desc {
			a, b = b, a
		}
		switch sortBy {
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case "last_executed_at":
			av, bv := int64(0), int64(0)
			if a.LastExecutedAt != nil {
				av = *a.LastExecutedAt
			}
			if b.LastExecutedAt != nil {
				bv = *b.LastExecutedAt
			}
			if av != bv {
				return av < bv
			}
		default:
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
		}
		return a.StrategyID < b.StrategyID
	})
}

// Paginate applies offset/limit to an already-sorted listing.
func Paginate(list []*domain.Strategy, q *ListQuery) []*domain.Strategy {
	if q == nil {
		return list
	}
	if q.Offset > 0 {
		if q.Offset >= len(list) {
			return nil
		}
		list = list[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(list) {
		list = list[:q.Limit]
	}
	return list
}

// FilterEvents applies an EventQuery to an already timestamp-ordered log.
func FilterEvents(events []*domain.StrategyEvent, q *EventQuery) []*domain.StrategyEvent {
	if q == nil {
		return events
	}
	out := make([]*domain.StrategyEvent, 0, len(events))
	for _, e := range events {
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if q.Start != 0 && e.Timestamp < q.Start {
			continue
		}
		if q.End != 0 && e.Timestamp > q.End {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}
