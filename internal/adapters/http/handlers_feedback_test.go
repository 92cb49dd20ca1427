package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func reviewJSON(id, ownerID string) map[string]any {
	return map[string]any{
		"_id": id, "eventId": "e1", "userId": map[string]any{"_id": ownerID, "name": "Ada Lovelace"},
		"ratings": map[string]any{"overall": 4, "venue": 5}, "comments": "Great sound",
		"recommendation": true, "isPublic": true,
	}
}

// openEvent loads the event page so the client's review list is populated.
func (e *testEnv) openEvent(reviews ...any) {
	e.t.Helper()
	e.stub("GET /events/{id}", http.StatusOK, map[string]any{"success": true, "data": eventJSON("e1", "Jazz Night", time.Now().Add(-time.Hour))})
	e.stub("GET /events/{id}/feedback", http.StatusOK, map[string]any{
		"success": true, "data": reviews,
		"pagination": map[string]any{"page": 1, "limit": 10, "total": len(reviews), "totalPages": 1},
	})
	if rr := e.do("GET", "/events/e1", nil); rr.Code != http.StatusOK {
		e.t.Fatalf("open event: %d", rr.Code)
	}
}

func TestReviewCreate(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "user")
	env.openEvent(reviewJSON("r1", "u2"))

	var got map[string]any
	env.api.HandleFunc("POST /events/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"_id":"r2","ratings":{"overall":5},"isAnonymous":true,"anonymousName":"Anonymous"}}`))
	})

	rr := env.do("POST", "/events/e1/review", url.Values{
		"overall": {"5"}, "comments": {"Superb"}, "recommendation": {"yes"},
		"isAnonymous": {"on"}, "isPublic": {"on"}, "photos": {"https://img.test/1.jpg\n\nhttps://img.test/2.jpg"},
	})
	if rr.Code != http.StatusSeeOther || !strings.HasPrefix(location(rr), "/events/e1?notice=") {
		t.Fatalf("create: %d %q %s", rr.Code, location(rr), rr.Body.String())
	}
	if got["anonymousName"] != "Anonymous" {
		t.Errorf("anonymousName = %v, want default", got["anonymousName"])
	}
	if photos, _ := got["photos"].([]any); len(photos) != 2 {
		t.Errorf("photos = %v", got["photos"])
	}
	if list := env.bundle().Feedback.Reviews(); len(list) != 2 || list[0].ID != "r2" {
		t.Errorf("new review should be first, got %+v", list)
	}
}

func TestReviewCreate_MissingRating(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "user")
	rr := env.do("POST", "/events/e1/review", url.Values{"comments": {"no stars"}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Rating must be between 1 and 5") {
		t.Errorf("%d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "no stars") {
		t.Error("comments should be kept")
	}
}

func TestReviewEdit_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "user")
	env.openEvent(reviewJSON("mine", "u1"), reviewJSON("theirs", "u2"))

	if rr := env.do("GET", "/reviews/theirs/edit", nil); !strings.HasPrefix(location(rr), "/?notice=review+not+found") {
		t.Errorf("other's review: Location = %q", location(rr))
	}

	rr := env.do("GET", "/reviews/mine/edit", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Great sound") {
		t.Fatalf("edit page: %d", rr.Code)
	}

	env.stub("PATCH /feedback/{id}", http.StatusOK, map[string]any{"success": true, "data": map[string]any{"_id": "mine", "comments": "Even better"}})
	rr = env.do("POST", "/reviews/mine/edit", url.Values{"overall": {"5"}, "comments": {"Even better"}, "recommendation": {"yes"}})
	if !strings.HasPrefix(location(rr), "/events/e1?notice=Review+updated") {
		t.Fatalf("update: Location = %q %s", location(rr), rr.Body.String())
	}
	rv, ok := env.bundle().Feedback.Find("mine")
	if !ok || !rv.IsEdited || rv.Comments != "Even better" {
		t.Errorf("local entry = %+v", rv)
	}
	if rv.Ratings.Venue != 5 {
		t.Error("fields the server omitted should be kept")
	}
}

func TestReviewDelete(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "user")
	env.openEvent(reviewJSON("mine", "u1"))

	var deleted atomic.Value
	env.api.HandleFunc("DELETE /feedback/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted.Store(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	rr := env.do("POST", "/reviews/mine/delete", url.Values{})
	if !strings.HasPrefix(location(rr), "/events/e1?notice=Review+deleted") {
		t.Errorf("Location = %q", location(rr))
	}
	if deleted.Load() != "mine" {
		t.Errorf("deleted = %v", deleted.Load())
	}
	if _, ok := env.bundle().Feedback.Find("mine"); ok {
		t.Error("review should be removed locally")
	}
}

func TestReviewReply_Admin(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "admin")
	env.openEvent(reviewJSON("r1", "u2"))

	env.stub("POST /feedback/{id}/reply", http.StatusOK, map[string]any{"success": true, "data": map[string]any{
		"response": map[string]any{"text": "Thanks for coming", "respondedBy": "u1"},
	}})
	rr := env.do("POST", "/reviews/r1/reply", url.Values{"text": {"Thanks for coming"}})
	if !strings.HasPrefix(location(rr), "/events/e1?notice=Reply+posted") {
		t.Fatalf("Location = %q", location(rr))
	}
	rv, _ := env.bundle().Feedback.Find("r1")
	if rv.Response == nil || rv.Response.Text != "Thanks for coming" {
		t.Errorf("response = %+v", rv.Response)
	}

	rr = env.do("POST", "/reviews/r1/reply", url.Values{"text": {"  "}})
	if !strings.Contains(location(rr), "notice=Reply+text+is+required") {
		t.Errorf("blank reply: Location = %q", location(rr))
	}
}

func TestReviewReply_MissingEventIDFallsBackToLoadedEvent(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(true, "admin")
	rv := reviewJSON("r1", "u2")
	delete(rv, "eventId")
	env.openEvent(rv)

	env.stub("POST /feedback/{id}/reply", http.StatusOK, map[string]any{"success": true, "data": map[string]any{
		"response": map[string]any{"text": "Thanks"},
	}})
	rr := env.do("POST", "/reviews/r1/reply", url.Values{"text": {"Thanks"}})
	if !strings.HasPrefix(location(rr), "/events/e1?notice=Reply+posted") {
		t.Errorf("Location = %q, want the loaded event page", location(rr))
	}
}

func TestReviewReply_NonAdminRedirected(t *testing.T) {
	env := newTestEnv(t)
	var calls int32
	env.api.HandleFunc("POST /feedback/{id}/reply", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	env.signIn(true, "user")
	if rr := env.do("POST", "/reviews/r1/reply", url.Values{"text": {"hi"}}); location(rr) != "/" {
		t.Errorf("Location = %q", location(rr))
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("non-admin reached the API")
	}
}
