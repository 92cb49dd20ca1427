package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"glamour/internal/adapters/email"
	"glamour/internal/adapters/http/perf"
	"glamour/internal/application/stores"
	"glamour/internal/domain/contact"
	eventDomain "glamour/internal/domain/event"
)

// dashboardWindow is how far back the perf panel looks.
const dashboardWindow = time.Hour

type dashboardView struct {
	Data      *eventDomain.Dashboard
	Perf      perf.Snapshot
	LiveUsers int
}

// handleAdminDashboard shows the venue analytics next to this server's own timings.
func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	p := page{Title: "Admin dashboard"}
	view := dashboardView{
		Perf:      s.deps.Collector.Snapshot(s.now().Add(-dashboardWindow), 5),
		LiveUsers: s.deps.Registry.Len(),
	}
	data, err := b.Events.AdminData(r.Context())
	if err != nil {
		p.Error = stores.UserMessage(err)
	}
	view.Data = data
	p.Data = view
	s.pages.render(w, r, http.StatusOK, "dashboard.html", p)
}

// handleContact forwards the homepage enquiry to the venue inbox.
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m := contact.Message{
		Name:    strings.TrimSpace(r.PostForm.Get("name")),
		Email:   strings.TrimSpace(r.PostForm.Get("email")),
		Phone:   strings.TrimSpace(r.PostForm.Get("phone")),
		Subject: r.PostForm.Get("subject"),
		Body:    strings.TrimSpace(r.PostForm.Get("message")),
	}
	err := s.deps.Contact.Deliver(r.Context(), m)
	switch {
	case err == nil:
		redirectWithNotice(w, r, "/#contact", "Thank you! We will get back to you shortly.")
	case errors.Is(err, contact.ErrFieldsRequired), errors.Is(err, contact.ErrInvalidEmail), errors.Is(err, contact.ErrTooLong):
		redirectWithNotice(w, r, "/#contact", err.Error())
	case errors.Is(err, email.ErrNoInbox):
		internalError(w, err)
	default:
		// Provider failures are logged by the sender.
		redirectWithNotice(w, r, "/#contact", "We could not send your message. Please try again later.")
	}
}
