package stores

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"glamour/internal/adapters/api"
)

// fakeAPI answers requests from a route table keyed by "METHOD /path".
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]api.Result
	calls     []api.Request
	// gate, when set, blocks every call until it is closed.
	gate    chan struct{}
	started chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]api.Result{}}
}

func (f *fakeAPI) on(method, path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(body)
	res := api.Result{Status: status, Success: status >= 200 && status < 300}
	if res.Success {
		res.Data = raw
	} else {
		var env struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		_ = json.Unmarshal(raw, &env)
		res.Error = env.Message
		if res.Error == "" {
			res.Error = api.FallbackError
		}
		res.Code = env.Code
	}
	f.responses[method+" "+path] = res
}

func (f *fakeAPI) Do(ctx context.Context, req api.Request) api.Result {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate, started := f.gate, f.started
	res, ok := f.responses[req.Method+" "+req.Path]
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.Result{Error: ctx.Err().Error()}
		}
	}
	if !ok {
		return api.Result{Status: http.StatusNotFound, Error: api.FallbackError}
	}
	return res
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) lastCall() api.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return api.Request{}
	}
	return f.calls[len(f.calls)-1]
}

type staticToken string

func (s staticToken) Token() string { return string(s) }
