package service

import (
	"fmt"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/queue"
)

// PeriodService owns the local period list and turns each change into a
// queued mutation for the periods table.
//
// Every mutation is enqueued first and applied locally only once it is
// durable, so a storage failure leaves the in-memory state untouched and the
// caller sees domain.ErrNotRecorded.
type PeriodService struct {
	mu       sync.Mutex
	q        *queue.Queue
	periods  []domain.Period
	selected *int64
	logger   *zap.Logger

	now func() time.Time
}

func NewPeriodService(q *queue.Queue, logger *zap.Logger) *PeriodService {
	return &PeriodService{q: q, logger: logger, now: time.Now}
}

// Load replaces the local list, typically with rows fetched from the remote
// store at start-up. Nothing is enqueued. A selection that no longer exists
// is cleared.
func (s *PeriodService) Load(periods []domain.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.periods = slices.Clone(periods)
	if s.selected != nil && s.indexOf(*s.selected) < 0 {
		s.selected = nil
	}
}

// Replay applies pending period mutations on top of the loaded list, so rows
// fetched from a remote store that has not caught up yet still show local
// changes. Nothing is enqueued.
func (s *PeriodService) Replay(pending []domain.QueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range pending {
		if it.Table != domain.TablePeriods {
			continue
		}
		id, ok := asInt64(it.Payload["id"])
		if !ok {
			continue
		}
		i := s.indexOf(id)
		switch it.Op {
		case domain.OpInsert:
			if i < 0 {
				p := domain.Period{ID: id}
				applyColumns(&p, it.Payload)
				s.periods = append(s.periods, p)
			}
		case domain.OpUpdate:
			if i >= 0 {
				applyColumns(&s.periods[i], it.Payload)
			}
		case domain.OpDelete:
			if i >= 0 {
				s.periods = slices.Delete(s.periods, i, i+1)
			}
		}
	}
}

// Periods returns a copy of the local list.
func (s *PeriodService) Periods() []domain.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.periods)
}

// Get returns one period by id.
func (s *PeriodService) Get(id int64) (domain.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Period{}, domain.ErrNotFound
	}
	return s.periods[i], nil
}

// CreatePeriod adds a period and enqueues its insert.
func (s *PeriodService) CreatePeriod(req domain.CreatePeriodRequest) (domain.Period, error) {
	p := domain.Period(req)
	if err := p.Validate(); err != nil {
		return domain.Period{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(p.ID) >= 0 {
		return domain.Period{}, domain.ErrPeriodExists
	}
	if err := s.enqueue(domain.OpInsert, p.Payload()); err != nil {
		return domain.Period{}, err
	}
	s.periods = append(s.periods, p)
	return p, nil
}

// Rename changes a period's nickname.
func (s *PeriodService) Rename(id int64, nickname string) (domain.Period, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return domain.Period{}, err
	}
	return s.change(id, func(p *domain.Period) domain.Payload {
		p.Nickname = nickname
		return domain.Payload{"nickname": nickname}
	})
}

// AdjustPoints adds delta to a period's points. The queued update carries the
// resulting total rather than the delta, so replaying it is harmless.
func (s *PeriodService) AdjustPoints(id int64, delta int64) (domain.Period, error) {
	return s.change(id, func(p *domain.Period) domain.Payload {
		p.Points += delta
		return domain.Payload{"points": p.Points}
	})
}

// SetChips sets a period's chip count.
func (s *PeriodService) SetChips(id int64, chips int64) (domain.Period, error) {
	if chips < 0 {
		return domain.Period{}, domain.ErrInvalidChips
	}
	return s.change(id, func(p *domain.Period) domain.Payload {
		p.Chips = chips
		return domain.Payload{"chips": chips}
	})
}

// Update applies every non-nil field of req as a single queued update.
func (s *PeriodService) Update(id int64, req domain.UpdatePeriodRequest) (domain.Period, error) {
	if req.Nickname != nil {
		if err := domain.ValidateNickname(*req.Nickname); err != nil {
			return domain.Period{}, err
		}
	}
	if req.Chips != nil && *req.Chips < 0 {
		return domain.Period{}, domain.ErrInvalidChips
	}
	if req.Nickname == nil && req.PointsDelta == nil && req.Chips == nil {
		return domain.Period{}, fmt.Errorf("%w: %w", domain.ErrInvalidItem, domain.ErrEmptyPayload)
	}

	return s.change(id, func(p *domain.Period) domain.Payload {
		payload := domain.Payload{}
		if req.Nickname != nil {
			p.Nickname = *req.Nickname
			payload["nickname"] = p.Nickname
		}
		if req.PointsDelta != nil {
			p.Points += *req.PointsDelta
			payload["points"] = p.Points
		}
		if req.Chips != nil {
			p.Chips = *req.Chips
			payload["chips"] = p.Chips
		}
		return payload
	})
}

// DeletePeriod removes a period and enqueues its delete. Deleting the
// selected period clears the selection.
func (s *PeriodService) DeletePeriod(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	if err := s.enqueue(domain.OpDelete, domain.Payload{"id": id}); err != nil {
		return err
	}
	s.periods = slices.Delete(s.periods, i, i+1)
	if s.selected != nil && *s.selected == id {
		s.selected = nil
	}
	return nil
}

// Select makes id the period drops are scored against.
func (s *PeriodService) Select(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return domain.ErrNotFound
	}
	s.selected = &id
	return nil
}

// ClearSelection drops the current selection, if any.
func (s *PeriodService) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Selected returns the selected period; ok is false without a selection.
func (s *PeriodService) Selected() (p domain.Period, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return domain.Period{}, false
	}
	i := s.indexOf(*s.selected)
	if i < 0 {
		return domain.Period{}, false
	}
	return s.periods[i], true
}

// RecordDrop applies a ball landing in binIndex. With a period selected,
// points are added to it and an update is enqueued; without one nothing
// changes and the returned event is unattributed.
func (s *PeriodService) RecordDrop(req domain.DropRequest) (domain.DropEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := domain.DropEvent{TS: s.now().UnixMilli(), BinIndex: req.BinIndex}
	if s.selected == nil {
		return ev, nil
	}

	id := *s.selected
	i := s.indexOf(id)
	if i < 0 {
		s.selected = nil
		return ev, nil
	}

	total := s.periods[i].Points + req.Points
	if err := s.enqueue(domain.OpUpdate, domain.Payload{"id": id, "points": total}); err != nil {
		return domain.DropEvent{}, err
	}
	s.periods[i].Points = total

	points := req.Points
	ev.PeriodID = &id
	ev.PointsApplied = &points
	return ev, nil
}

// change runs mutate on a copy of period id, enqueues the returned columns as
// an update and commits the copy once the enqueue succeeded.
func (s *PeriodService) change(id int64, mutate func(p *domain.Period) domain.Payload) (domain.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Period{}, domain.ErrNotFound
	}

	next := s.periods[i]
	payload := mutate(&next)
	payload["id"] = id

	if err := s.enqueue(domain.OpUpdate, payload); err != nil {
		return domain.Period{}, err
	}
	s.periods[i] = next
	return next, nil
}

func (s *PeriodService) enqueue(op domain.Operation, payload domain.Payload) error {
	item := domain.QueueItem{
		ID:        uuid.NewString(),
		Op:        op,
		Table:     domain.TablePeriods,
		Payload:   payload,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.q.Enqueue(item); err != nil {
		s.logger.Error("failed to record period mutation",
			zap.String("op", string(op)), zap.Any("row", payload["id"]), zap.Error(err))
		return err
	}
	return nil
}

func (s *PeriodService) indexOf(id int64) int {
	return slices.IndexFunc(s.periods, func(p domain.Period) bool { return p.ID == id })
}

func applyColumns(p *domain.Period, payload domain.Payload) {
	if v, ok := payload["nickname"].(string); ok {
		p.Nickname = v
	}
	if v, ok := asInt64(payload["points"]); ok {
		p.Points = v
	}
	if v, ok := asInt64(payload["chips"]); ok {
		p.Chips = v
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
