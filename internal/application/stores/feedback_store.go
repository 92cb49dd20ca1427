package stores

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"glamour/internal/adapters/api"
	eventDomain "glamour/internal/domain/event"
	domain "glamour/internal/domain/feedback"
)

const (
	actListReviews  = "list_reviews"
	actCreateReview = "create_review"
	actUpdateReview = "update_review"
	actDeleteReview = "delete_review"
	actReply        = "reply_review"
)

// DefaultReviewPageSize is used when a caller passes a non-positive limit.
const DefaultReviewPageSize = 10

// FeedbackStore holds the review list for the event a client is viewing.
// INVARIANT: reviews are in insertion order, newest first
type FeedbackStore struct {
	actions

	api    API
	tokens TokenSource

	eventID    string
	reviews    []domain.Review
	pagination *eventDomain.Pagination
}

// NewFeedbackStore creates an empty FeedbackStore.
func NewFeedbackStore(client API, tokens TokenSource) *FeedbackStore {
	return &FeedbackStore{api: client, tokens: tokens}
}

func (s *FeedbackStore) token() string {
	if s.tokens == nil {
		return ""
	}
	return s.tokens.Token()
}

// Reviews returns a copy of the local review list.
func (s *FeedbackStore) Reviews() []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Review(nil), s.reviews...)
}

// EventID returns the event whose reviews are loaded.
func (s *FeedbackStore) EventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

// Find returns the local review with id.
func (s *FeedbackStore) Find(id string) (domain.Review, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Review{}, false
}

// ListForEvent fetches one page of an event's reviews and overwrites the list.
func (s *FeedbackStore) ListForEvent(ctx context.Context, eventID string, page, limit int) ([]domain.Review, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultReviewPageSize
	}
	t := s.beginRead(actListReviews)
	defer s.end(t)

	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	res := s.api.Do(ctx, api.Request{
		Method: http.MethodGet,
		Path:   "/events/" + url.PathEscape(eventID) + "/feedback",
		Query:  q,
		Token:  s.token(),
	})
	if !res.Success {
		return nil, s.fail(t, actionError(actListReviews, res))
	}
	var list []domain.Review
	p, err := decodeData(res, &list)
	if err != nil {
		return nil, s.fail(t, &ActionError{Action: actListReviews, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		s.eventID = eventID
		s.reviews = list
		s.pagination = p
	}); err != nil {
		return nil, err
	}
	return list, nil
}

// Create submits a review and prepends the server's copy to the list.
// POST: on success the new review is Reviews()[0] with IsEdited false
func (s *FeedbackStore) Create(ctx context.Context, eventID string, in domain.Input) (*domain.Review, error) {
	if err := in.Validate(); err != nil {
		return nil, s.reject(err)
	}
	in = in.Normalize()
	t, err := s.begin(actCreateReview)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/events/" + url.PathEscape(eventID) + "/feedback",
		Token:  s.token(),
		Body:   in,
	})
	if !res.Success {
		return nil, s.fail(t, actionError(actCreateReview, res))
	}
	var r domain.Review
	if _, err := decodeData(res, &r); err != nil {
		return nil, s.fail(t, &ActionError{Action: actCreateReview, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		s.reviews = append([]domain.Review{r}, s.reviews...)
	}); err != nil {
		return nil, err
	}
	slog.Info("review_created", "event_id", eventID, "review_id", r.ID, "overall", r.Ratings.Overall)
	return &r, nil
}

// Update edits a review; the server's fields are merged into the local entry.
// POST: the local entry, if present, has IsEdited true
func (s *FeedbackStore) Update(ctx context.Context, reviewID string, u domain.Update) (*domain.Review, error) {
	if err := u.Validate(); err != nil {
		return nil, s.reject(err)
	}
	u = u.Normalize()
	t, err := s.begin(actUpdateReview)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{
		Method: http.MethodPatch,
		Path:   "/feedback/" + url.PathEscape(reviewID),
		Token:  s.token(),
		Body:   u,
	})
	if !res.Success {
		return nil, s.fail(t, actionError(actUpdateReview, res))
	}

	var raw json.RawMessage
	var fresh domain.Review
	_, err = decodeData(res, &raw)
	if err == nil {
		err = unmarshalData(raw, &fresh)
	}
	if err != nil {
		return nil, s.fail(t, &ActionError{Action: actUpdateReview, Message: api.FallbackError, Status: res.Status})
	}
	var merged domain.Review
	var decodeErr error
	if err := s.commit(t, func() {
		for i := range s.reviews {
			if s.reviews[i].ID != reviewID {
				continue
			}
			// Earlier snapshots share the entry's photos and pointers, so the
			// server's fields land on a deep copy. Fields it omits are kept.
			entry := s.reviews[i].Clone()
			if decodeErr = unmarshalData(raw, &entry); decodeErr != nil {
				return
			}
			entry.IsEdited = true
			s.reviews[i] = entry
			merged = entry.Clone()
			return
		}
		merged = fresh
		merged.IsEdited = true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, s.fail(t, &ActionError{Action: actUpdateReview, Message: api.FallbackError, Status: res.Status})
	}
	return &merged, nil
}

// Delete removes a review on the server and locally.
func (s *FeedbackStore) Delete(ctx context.Context, reviewID string) error {
	t, err := s.begin(actDeleteReview)
	if err != nil {
		return err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{Method: http.MethodDelete, Path: "/feedback/" + url.PathEscape(reviewID), Token: s.token()})
	if !res.Success {
		return s.fail(t, actionError(actDeleteReview, res))
	}
	return s.commit(t, func() {
		out := s.reviews[:0:0]
		for _, r := range s.reviews {
			if r.ID != reviewID {
				out = append(out, r)
			}
		}
		s.reviews = out
	})
}

// Reply posts an organizer response and attaches it to the local entry.
func (s *FeedbackStore) Reply(ctx context.Context, reviewID, text string) (*domain.Response, error) {
	if err := domain.ValidateReply(text); err != nil {
		return nil, s.reject(err)
	}
	t, err := s.begin(actReply)
	if err != nil {
		return nil, err
	}
	defer s.end(t)

	res := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/feedback/" + url.PathEscape(reviewID) + "/reply",
		Token:  s.token(),
		Body:   map[string]string{"text": text},
	})
	if !res.Success {
		return nil, s.fail(t, actionError(actReply, res))
	}
	var body struct {
		Response *domain.Response `json:"response"`
	}
	if _, err := decodeData(res, &body); err != nil || body.Response == nil {
		return nil, s.fail(t, &ActionError{Action: actReply, Message: api.FallbackError, Status: res.Status})
	}
	if err := s.commit(t, func() {
		for i := range s.reviews {
			if s.reviews[i].ID == reviewID {
				s.reviews[i].Response = body.Response
			}
		}
	}); err != nil {
		return nil, err
	}
	return body.Response, nil
}

// unmarshalData decodes an envelope's data field; an empty field leaves v as is.
func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// HasNext reports whether the API has more reviews after the loaded page.
func (s *FeedbackStore) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination.HasNext()
}

// Clear empties the list, pagination and error.
func (s *FeedbackStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = nil
	s.pagination = nil
	s.eventID = ""
	s.lastErr = ""
}

// Invalidate discards in-flight responses and clears the list.
func (s *FeedbackStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
	s.reviews = nil
	s.pagination = nil
	s.eventID = ""
}
