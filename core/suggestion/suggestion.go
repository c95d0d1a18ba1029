// Package suggestion moves optimization suggestions from pending to a
// terminal accepted or rejected state.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sitepulse/core/hub"
	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/model"
)

// ScheduleMessage is returned with every accepted suggestion.
const ScheduleMessage = "Action scheduled for next control cycle."

// DefaultCooldown suppresses new proposals for a site after an operator acted.
const DefaultCooldown = 5 * time.Minute

// ErrNotFound is returned when no suggestion with the id exists for the site.
var ErrNotFound = errors.New("suggestion not found")

// Store persists suggestions.
type Store interface {
	InsertSuggestion(ctx context.Context, s model.Suggestion) error
	GetSuggestion(ctx context.Context, siteID, id string) (model.Suggestion, error)
	// TransitionSuggestion sets status only when the row is still pending and
	// reports whether it changed.
	TransitionSuggestion(ctx context.Context, siteID, id string, to model.SuggestionStatus, at time.Time) (bool, error)
	ListSuggestions(ctx context.Context, siteID string, status model.SuggestionStatus) ([]model.Suggestion, error)
}

// Publisher delivers events to a site group.
type Publisher interface {
	Publish(siteID string, ev hub.Event) int
}

// Result is returned by Accept and Reject.
type Result struct {
	Success  bool                   `json:"success"`
	Status   model.SuggestionStatus `json:"status"`
	Schedule string                 `json:"schedule,omitempty"`
	Changed  bool                   `json:"-"`
}

// Update is the payload of a suggestion_update event.
type Update struct {
	ID         string                 `json:"id"`
	Status     model.SuggestionStatus `json:"status"`
	ActionedAt time.Time              `json:"actionedAt"`
}

// Service applies lifecycle transitions.
type Service struct {
	store    Store
	pub      Publisher
	log      logger.Logger
	cooldown time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastAction map[string]time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithCooldown overrides DefaultCooldown. A non-positive value disables the cooldown.
func WithCooldown(d time.Duration) Option { return func(s *Service) { s.cooldown = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a Service. pub and log may be nil.
func NewService(store Store, pub Publisher, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Service{
		store:      store,
		pub:        pub,
		log:        log,
		cooldown:   DefaultCooldown,
		now:        time.Now,
		lastAction: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Accept marks a pending suggestion accepted.
func (s *Service) Accept(ctx context.Context, siteID, id string) (Result, error) {
	return s.transition(ctx, siteID, id, model.SuggestionAccepted)
}

// Reject marks a pending suggestion rejected.
func (s *Service) Reject(ctx context.Context, siteID, id string) (Result, error) {
	return s.transition(ctx, siteID, id, model.SuggestionRejected)
}

func (s *Service) transition(ctx context.Context, siteID, id string, to model.SuggestionStatus) (Result, error) {
	at := s.now().UTC()
	changed, err := s.store.TransitionSuggestion(ctx, siteID, id, to, at)
	if err != nil {
		return Result{}, fmt.Errorf("%s suggestion %s: %w", to, id, err)
	}
	status := to
	if !changed {
		cur, err := s.store.GetSuggestion(ctx, siteID, id)
		if err != nil {
			return Result{}, err
		}
		status = cur.Status
		s.log.Debugf("suggestion %s already %s", id, status)
	} else {
		s.mu.Lock()
		s.lastAction[siteID] = at
		s.mu.Unlock()
		s.log.Infof("suggestion %s for site %s %s", id, siteID, to)
		if s.pub != nil {
			s.pub.Publish(siteID, hub.Event{
				Type:      hub.EventSuggestionUpdate,
				SiteID:    siteID,
				Timestamp: at,
				Data:      Update{ID: id, Status: to, ActionedAt: at},
			})
		}
	}
	res := Result{Success: true, Status: status, Changed: changed}
	if status == model.SuggestionAccepted {
		res.Schedule = ScheduleMessage
	}
	return res, nil
}

// Propose stores a new pending suggestion and echoes it to the site group.
// It returns false without error when the site is still in its cooldown.
func (s *Service) Propose(ctx context.Context, sg model.Suggestion) (bool, error) {
	if sg.SiteID == "" {
		return false, errors.New("suggestion site id required")
	}
	now := s.now().UTC()
	s.mu.Lock()
	last, ok := s.lastAction[sg.SiteID]
	s.mu.Unlock()
	if ok && s.cooldown > 0 && now.Sub(last) < s.cooldown {
		s.log.Debugf("dropping suggestion for site %s: cooldown until %s", sg.SiteID, last.Add(s.cooldown).Format(time.RFC3339))
		return false, nil
	}
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	sg.Status = model.SuggestionPending
	sg.ActionedAt = nil
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = now
	}
	if err := s.store.InsertSuggestion(ctx, sg); err != nil {
		return false, fmt.Errorf("insert suggestion: %w", err)
	}
	if s.pub != nil {
		s.pub.Publish(sg.SiteID, hub.Event{Type: hub.EventSuggestion, SiteID: sg.SiteID, Timestamp: now, Data: sg})
	}
	return true, nil
}

// Pending lists the site's pending suggestions.
func (s *Service) Pending(ctx context.Context, siteID string) ([]model.Suggestion, error) {
	return s.store.ListSuggestions(ctx, siteID, model.SuggestionPending)
}
