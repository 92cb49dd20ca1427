package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"glamour/internal/application/stores"
	eventDomain "glamour/internal/domain/event"
	"glamour/internal/domain/feedback"
)

// homeEventLimit is how many events each homepage section shows.
const homeEventLimit = 6

type homeView struct {
	Categories    []string
	Category      string
	Upcoming      []eventDomain.Event
	Past          []eventDomain.Event
	UpcomingError string
	PastError     string
	Contact       url.Values
}

// handleHome lists upcoming and past events, optionally filtered by category.
// A failure in one section does not hide the other.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")
	if !eventDomain.IsCategory(category) {
		category = ""
	}
	f := eventDomain.Filter{Category: category, Limit: homeEventLimit}
	view := homeView{Categories: eventDomain.Categories, Category: category}

	var err error
	if view.Upcoming, err = b.Events.Upcoming(r.Context(), f); err != nil {
		view.UpcomingError = stores.UserMessage(err)
	}
	if view.Past, err = b.Events.Past(r.Context(), f); err != nil {
		view.PastError = stores.UserMessage(err)
	}
	s.pages.render(w, r, http.StatusOK, "home.html", page{Title: "Glamour Events", Data: view})
}

// --- Create ---

func (s *Server) handleCreateEventPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, http.StatusOK, "create_event.html", page{
		Title: "Create event",
		Data:  eventDomain.Categories,
	})
}

// maxEventForm leaves room for the text fields beside a maximum-size banner.
const maxEventForm = eventDomain.MaxBannerBytes + 1<<20

// parseEventForm reads the multipart form and the optional banner.
func parseEventForm(w http.ResponseWriter, r *http.Request) (eventDomain.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventForm)
	if err := r.ParseMultipartForm(maxEventForm); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return eventDomain.Input{}, eventDomain.ErrBannerTooLarge
		}
		return eventDomain.Input{}, fmt.Errorf("parse event form: %w", err)
	}
	in := eventDomain.Input{
		Title:       strings.TrimSpace(r.PostForm.Get("title")),
		Description: strings.TrimSpace(r.PostForm.Get("description")),
		Date:        strings.TrimSpace(r.PostForm.Get("date")),
		Location:    strings.TrimSpace(r.PostForm.Get("location")),
		Category:    r.PostForm.Get("category"),
	}

	file, header, err := r.FormFile("banner")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, fmt.Errorf("read banner: %w", err)
	}
	defer file.Close()
	// One byte past the limit is enough for Validate to reject it.
	data, err := io.ReadAll(io.LimitReader(file, eventDomain.MaxBannerBytes+1))
	if err != nil {
		return in, fmt.Errorf("read banner: %w", err)
	}
	if len(data) > 0 {
		in.Banner = &eventDomain.Banner{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	return in, nil
}

// handleCreateEvent sends the new event as multipart, banner included.
// POST: success → /events/{id} with a notice
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	in, err := parseEventForm(w, r)
	if err == nil {
		var ev *eventDomain.Event
		ev, err = b.Events.Create(r.Context(), in)
		if err == nil {
			redirectWithNotice(w, r, "/events/"+url.PathEscape(ev.ID), "Event created successfully")
			return
		}
	}
	s.formError(w, r, "create_event.html", "Create event", err, eventDomain.Categories)
}

// --- Detail ---

type detailView struct {
	Event        *eventDomain.Event
	Past         bool
	Reviews      []feedback.Review
	ReviewsError string
	Page         int
	HasNext      bool
	ViewerID     string
}

func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// handleEventDetail shows one event with a page of its reviews.
func (s *Server) handleEventDetail(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	ev, err := b.Events.Get(r.Context(), id)
	if err != nil {
		redirectWithNotice(w, r, "/", stores.UserMessage(err))
		return
	}

	view := detailView{Event: ev, Past: ev.IsPast(s.now()), Page: pageParam(r)}
	if u := b.Auth.Session().User; u != nil {
		view.ViewerID = u.ID
	}
	view.Reviews, err = b.Feedback.ListForEvent(r.Context(), id, view.Page, stores.DefaultReviewPageSize)
	if err != nil {
		view.ReviewsError = stores.UserMessage(err)
	}
	view.HasNext = b.Feedback.HasNext()
	s.pages.render(w, r, http.StatusOK, "event.html", page{Title: ev.Title, Data: view})
}

// --- Stats ---

type statsView struct {
	EventID string
	Title   string
	Stats   *eventDomain.Stats
}

// handleEventStats shows the rating distribution and averages.
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	view := statsView{EventID: id}
	p := page{Title: "Event statistics", Data: &view}
	if ev, err := b.Events.Get(r.Context(), id); err == nil {
		view.Title = ev.Title
	}
	stats, err := b.Events.Stats(r.Context(), id)
	if err != nil {
		p.Error = stores.UserMessage(err)
	}
	view.Stats = stats
	s.pages.render(w, r, http.StatusOK, "stats.html", p)
}

// --- Delete ---

func (s *Server) handleEventDelete(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Events.Delete(r.Context(), r.PathValue("id")); err != nil {
		redirectWithNotice(w, r, "/admin/dashboard", stores.UserMessage(err))
		return
	}
	redirectWithNotice(w, r, "/admin/dashboard", "Event deleted")
}
