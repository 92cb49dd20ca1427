package stores

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"glamour/internal/adapters/api"
	domain "glamour/internal/domain/event"
)

const (
	actCreateEvent = "create_event"
	actListEvents  = "list_events"
	actGetEvent    = "get_event"
	actUpdateEvent = "update_event"
	actDeleteEvent = "delete_event"
	actUpcoming    = "upcoming_events"
	actPast        = "past_events"
	actStats       = "event_stats"
	actAdminData   = "admin_data"
)

// EventStore holds one client's view of events. Events are never mutated
// locally beyond removal after a confirmed delete.
type EventStore struct {
	actions

	api    API
	tokens TokenSource

	events     []domain.Event
	pagination *domain.Pagination
	upcoming   []domain.Event
	past       []domain.Event
	current    *domain.Event
}

// NewEventStore creates an empty EventStore.
func NewEventStore(client API, tokens TokenSource) *EventStore {
	return &EventStore{api: client, tokens: tokens}
}

// envelope is the API's standard {success, data, pagination, message} wrapper.
type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Pagination *domain.Pagination `json:"pagination"`
	Message    string             `json:"message"`
}

// decodeData unwraps the envelope and decodes its data field into v.
func decodeData(res api.Result, v any) (*domain.Pagination, error) {
	var env envelope
	if err := res.Decode(&env); err != nil {
		return nil, err
	}
	if v != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return nil, err
		}
	}
	return env.Pagination, nil
}

func (s *EventStore) token() string {
	if s.tokens == nil {
		return ""
	}
	return s.tokens.Token()
}

// Events returns the last listed events.
func (s *EventStore) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Pagination returns the paging metadata of the last list call.
func (s *EventStore) Pagination() *domain.Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination
}

// Current returns the last fetched single event.
func (s *EventStore) Current() *domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Create uploads a new event with its optional banner.
// PRE: a token is held
func (s *EventStore) Create(ctx context.Context, in domain.Input) (*domain.Event, error) {
	token := s.token()
	if token == "" {
		return nil, s.reject(ErrNoToken)
	}
	if err := in.Validate(); err != nil {
		return nil, s.reject(err)
	}
	t, err := s.begin(actCreateEvent)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodPost, Path: "/events", Token: token, Form: eventForm(in)})
	if !res.Success {
		return nil, s.fail(t, actionError(actCreateEvent, res))
	}
	var created domain.Event
	if _, err := decodeData(res, &created); err != nil {
		return nil, s.fail(t, &ActionError{Action: actCreateEvent, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {}); err != nil {
		return nil, err
	}
	slog.Info("event_created", "event_id", created.ID, "title", created.Title)
	return &created, nil
}

// List fetches events matching f and overwrites the local list.
func (s *EventStore) List(ctx context.Context, f domain.Filter) ([]domain.Event, error) {
	t := s.beginRead(actListEvents)
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodGet, Path: "/events", Query: f.Query(), Token: s.token()})
	if !res.Success {
		return nil, s.fail(t, actionError(actListEvents, res))
	}
	var list []domain.Event
	page, err := decodeData(res, &list)
	if err != nil {
		return nil, s.fail(t, &ActionError{Action: actListEvents, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		s.events = list
		s.pagination = page
	}); err != nil {
		return nil, err
	}
	return list, nil
}

// Get fetches one event into Current.
func (s *EventStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	t := s.beginRead(actGetEvent)
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodGet, Path: "/events/" + url.PathEscape(id), Token: s.token()})
	if !res.Success {
		return nil, s.fail(t, actionError(actGetEvent, res))
	}
	var ev domain.Event
	if _, err := decodeData(res, &ev); err != nil {
		return nil, s.fail(t, &ActionError{Action: actGetEvent, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() { s.current = &ev }); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Update replaces an event's fields and optionally its banner.
// PRE: a token is held
func (s *EventStore) Update(ctx context.Context, id string, in domain.Input) (*domain.Event, error) {
	token := s.token()
	if token == "" {
		return nil, s.reject(ErrNoToken)
	}
	if err := in.Validate(); err != nil {
		return nil, s.reject(err)
	}
	t, err := s.begin(actUpdateEvent)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodPut, Path: "/events/" + url.PathEscape(id), Token: token, Form: eventForm(in)})
	if !res.Success {
		return nil, s.fail(t, actionError(actUpdateEvent, res))
	}
	var ev domain.Event
	if _, err := decodeData(res, &ev); err != nil {
		return nil, s.fail(t, &ActionError{Action: actUpdateEvent, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		if s.current != nil && s.current.ID == id {
			s.current = &ev
		}
	}); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Delete removes an event and drops it from every local list.
// PRE: a token is held
func (s *EventStore) Delete(ctx context.Context, id string) error {
	token := s.token()
	if token == "" {
		return s.reject(ErrNoToken)
	}
	t, err := s.begin(actDeleteEvent)
	if err != nil {
		return err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodDelete, Path: "/events/" + url.PathEscape(id), Token: token})
	if !res.Success {
		return s.fail(t, actionError(actDeleteEvent, res))
	}
	if err := s.commit(t, func() {
		s.events = withoutEvent(s.events, id)
		s.upcoming = withoutEvent(s.upcoming, id)
		s.past = withoutEvent(s.past, id)
		if s.current != nil && s.current.ID == id {
			s.current = nil
		}
	}); err != nil {
		return err
	}
	slog.Info("event_deleted", "event_id", id)
	return nil
}

// Upcoming fetches future events.
func (s *EventStore) Upcoming(ctx context.Context, f domain.Filter) ([]domain.Event, error) {
	return s.fetchList(ctx, actUpcoming, "/events/upcoming", f, func(list []domain.Event) { s.upcoming = list })
}

// Past fetches finished events.
func (s *EventStore) Past(ctx context.Context, f domain.Filter) ([]domain.Event, error) {
	return s.fetchList(ctx, actPast, "/events/past", f, func(list []domain.Event) { s.past = list })
}

func (s *EventStore) fetchList(ctx context.Context, action, path string, f domain.Filter, store func([]domain.Event)) ([]domain.Event, error) {
	t := s.beginRead(action)
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodGet, Path: path, Query: f.Query(), Token: s.token()})
	if !res.Success {
		return nil, s.fail(t, actionError(action, res))
	}
	var list []domain.Event
	if _, err := decodeData(res, &list); err != nil {
		return nil, s.fail(t, &ActionError{Action: action, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() { store(list) }); err != nil {
		return nil, err
	}
	return list, nil
}

// Stats fetches the rating distribution and the average concurrently.
// POST: both calls must succeed, otherwise domain.ErrStatsFailed
func (s *EventStore) Stats(ctx context.Context, id string) (*domain.Stats, error) {
	t := s.beginRead(actStats)
	defer s.end(t)

	base := "/events/" + url.PathEscape(id)
	token := s.token()
	var stats domain.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := s.api.Do(gctx, api.Request{Method: http.MethodGet, Path: base + "/ratings-distribution", Token: token})
		if !res.Success {
			return actionError(actStats, res)
		}
		_, err := decodeData(res, &stats.Distribution)
		return err
	})
	g.Go(func() error {
		res := s.api.Do(gctx, api.Request{Method: http.MethodGet, Path: base + "/average-rating", Token: token})
		if !res.Success {
			return actionError(actStats, res)
		}
		_, err := decodeData(res, &stats.Average)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("event_stats_failed", "event_id", id, "error", err)
		return nil, s.fail(t, &ActionError{Action: actStats, Message: domain.ErrStatsFailed.Error()})
	}
	if err := s.commit(t, func() {}); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminData fetches the admin dashboard aggregates.
// PRE: a token is held; the API enforces the admin role
func (s *EventStore) AdminData(ctx context.Context) (*domain.Dashboard, error) {
	token := s.token()
	if token == "" {
		return nil, s.reject(ErrNoToken)
	}
	t := s.beginRead(actAdminData)
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodGet, Path: "/admin/data", Token: token})
	if !res.Success {
		return nil, s.fail(t, actionError(actAdminData, res))
	}
	var d domain.Dashboard
	if _, err := decodeData(res, &d); err != nil {
		return nil, s.fail(t, &ActionError{Action: actAdminData, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		s.upcoming = d.UpcomingEvents
		s.past = d.PastEvents
	}); err != nil {
		return nil, err
	}
	return &d, nil
}

// Invalidate discards in-flight responses and forgets all cached events.
func (s *EventStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
	s.events, s.upcoming, s.past = nil, nil, nil
	s.pagination, s.current = nil, nil
}

func eventForm(in domain.Input) *api.Multipart {
	form := &api.Multipart{Fields: in.Fields()}
	if b := in.Banner; b != nil {
		form.File = &api.FilePart{Field: "banner", Filename: b.Filename, ContentType: b.ContentType, Data: b.Data}
	}
	return form
}

func withoutEvent(list []domain.Event, id string) []domain.Event {
	out := list[:0:0]
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
