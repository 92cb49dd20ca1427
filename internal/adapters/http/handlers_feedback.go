package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"glamour/internal/application/stores"
	"glamour/internal/domain/feedback"
)

func formInt(v url.Values, key string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v.Get(key)))
	return n
}

func formBool(v url.Values, key string) bool {
	switch v.Get(key) {
	case "on", "true", "yes", "1":
		return true
	}
	return false
}

func formRatings(v url.Values) feedback.Ratings {
	return feedback.Ratings{
		Overall:      formInt(v, "overall"),
		Venue:        formInt(v, "venue"),
		Sound:        formInt(v, "sound"),
		Staff:        formInt(v, "staff"),
		Organization: formInt(v, "organization"),
	}
}

// formPhotos reads one photo URL per line.
func formPhotos(v url.Values) []string {
	var out []string
	for _, line := range strings.Split(v.Get("photos"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func eventPath(id string) string {
	return "/events/" + url.PathEscape(id)
}

type reviewView struct {
	EventID    string
	EventTitle string
	Review     *feedback.Review // nil when creating
}

// --- Create ---

func (s *Server) handleReviewPage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	view := reviewView{EventID: id}
	if ev, err := b.Events.Get(r.Context(), id); err == nil {
		view.EventTitle = ev.Title
	}
	s.pages.render(w, r, http.StatusOK, "review.html", page{
		Title: "Write a review",
		Form:  url.Values{"isPublic": {"on"}, "recommendation": {"yes"}},
		Data:  view,
	})
}

// handleReviewCreate posts a review; the event page then shows it first.
func (s *Server) handleReviewCreate(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	v := r.PostForm
	in := feedback.Input{
		Ratings:        formRatings(v),
		Comments:       strings.TrimSpace(v.Get("comments")),
		Recommendation: v.Get("recommendation") == "yes",
		Photos:         formPhotos(v),
		IsAnonymous:    formBool(v, "isAnonymous"),
		AnonymousName:  strings.TrimSpace(v.Get("anonymousName")),
		IsPublic:       formBool(v, "isPublic"),
	}
	if ag := v.Get("ageGroup"); ag != "" || formBool(v, "firstTimeVisitor") {
		in.Demographics = &feedback.Demographics{AgeGroup: ag, FirstTimeVisitor: formBool(v, "firstTimeVisitor")}
	}

	if _, err := b.Feedback.Create(r.Context(), id, in); err != nil {
		s.formError(w, r, "review.html", "Write a review", err, reviewView{EventID: id})
		return
	}
	redirectWithNotice(w, r, eventPath(id), "Thank you for your review!")
}

// --- Edit ---

// ownReview finds a review from the last loaded event page that the viewer wrote.
func ownReview(b *stores.Bundle, id string) (feedback.Review, bool) {
	rv, ok := b.Feedback.Find(id)
	if !ok {
		return rv, false
	}
	if rv.EventID == "" {
		rv.EventID = b.Feedback.EventID()
	}
	u := b.Auth.Session().User
	if rv.User != nil && u != nil && rv.User.ID != u.ID && !u.IsAdmin() {
		return rv, false
	}
	return rv, true
}

func reviewForm(rv feedback.Review) url.Values {
	v := url.Values{}
	v.Set("overall", strconv.Itoa(rv.Ratings.Overall))
	v.Set("venue", strconv.Itoa(rv.Ratings.Venue))
	v.Set("sound", strconv.Itoa(rv.Ratings.Sound))
	v.Set("staff", strconv.Itoa(rv.Ratings.Staff))
	v.Set("organization", strconv.Itoa(rv.Ratings.Organization))
	v.Set("comments", rv.Comments)
	v.Set("photos", strings.Join(rv.Photos, "\n"))
	if rv.Recommendation {
		v.Set("recommendation", "yes")
	} else {
		v.Set("recommendation", "no")
	}
	if rv.IsPublic {
		v.Set("isPublic", "on")
	}
	return v
}

func (s *Server) handleReviewEditPage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	rv, ok := ownReview(b, r.PathValue("id"))
	if !ok {
		redirectWithNotice(w, r, "/", feedback.ErrNotFound.Error())
		return
	}
	s.pages.render(w, r, http.StatusOK, "review.html", page{
		Title: "Edit your review",
		Form:  reviewForm(rv),
		Data:  reviewView{EventID: rv.EventID, Review: &rv},
	})
}

// handleReviewUpdate patches the review; the local entry is marked edited.
func (s *Server) handleReviewUpdate(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	rv, ok := ownReview(b, r.PathValue("id"))
	if !ok {
		redirectWithNotice(w, r, "/", feedback.ErrNotFound.Error())
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	v := r.PostForm
	ratings := formRatings(v)
	u := feedback.Update{
		Ratings:        &ratings,
		Comments:       strings.TrimSpace(v.Get("comments")),
		Recommendation: v.Get("recommendation") == "yes",
		Photos:         formPhotos(v),
		IsPublic:       formBool(v, "isPublic"),
	}
	if _, err := b.Feedback.Update(r.Context(), rv.ID, u); err != nil {
		s.formError(w, r, "review.html", "Edit your review", err, reviewView{EventID: rv.EventID, Review: &rv})
		return
	}
	redirectWithNotice(w, r, eventPath(rv.EventID), "Review updated")
}

// --- Delete / reply ---

func (s *Server) handleReviewDelete(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	rv, ok := ownReview(b, r.PathValue("id"))
	if !ok {
		redirectWithNotice(w, r, "/", feedback.ErrNotFound.Error())
		return
	}
	notice := "Review deleted"
	if err := b.Feedback.Delete(r.Context(), rv.ID); err != nil {
		notice = stores.UserMessage(err)
	}
	redirectWithNotice(w, r, eventPath(rv.EventID), notice)
}

// handleReviewReply attaches an organizer response. Admin only.
func (s *Server) handleReviewReply(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	back := "/"
	if rv, found := b.Feedback.Find(id); found && rv.EventID != "" {
		back = eventPath(rv.EventID)
	} else if ev := b.Feedback.EventID(); ev != "" {
		back = eventPath(ev)
	}
	notice := "Reply posted"
	if _, err := b.Feedback.Reply(r.Context(), id, strings.TrimSpace(r.PostForm.Get("text"))); err != nil {
		notice = stores.UserMessage(err)
	}
	redirectWithNotice(w, r, back, notice)
}
