package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	domain "glamour/internal/domain/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// mdRenderer converts event descriptions and review comments. Raw HTML in the
// input is escaped because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

var funcMap = template.FuncMap{
	"markdown": renderMarkdown,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("Mon 2 Jan 2006, 15:04")
	},
	"day": func(t time.Time) string { return t.Local().Format("2 Jan 2006") },
	"stars": func(n int) string {
		n = max(0, min(n, 5))
		return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
	},
	"pct":    func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"signed": func(f float64) string { return fmt.Sprintf("%+.1f%%", f) },
	"one":    func(f float64) string { return fmt.Sprintf("%.1f", f) },
	"round":  func(f float64) int { return int(math.Round(f)) },
	"ms":     func(f float64) string { return fmt.Sprintf("%.1f ms", f) },
	"add":    func(a, b int) int { return a + b },
	"sub":    func(a, b int) int { return a - b },
	"list":   func(items ...string) []string { return items },
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, fmt.Errorf("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}

// page is the view model every template receives.
type page struct {
	Title   string
	Session domain.Session
	CSRF    template.HTML
	Notice  string
	Error   string
	Form    url.Values
	Data    any
}

// IsAdmin is used by the layout to show the dashboard link.
func (p page) IsAdmin() bool {
	return p.Session.User.IsAdmin()
}

// Value returns a submitted form value so a failed form can be redisplayed.
func (p page) Value(key string) string {
	return p.Form.Get(key)
}

// renderer holds one parsed template set per page, each with the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &renderer{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		base := strings.TrimPrefix(name, "templates/")
		if base == "layout.html" {
			continue
		}
		tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		r.pages[base] = tpl
	}
	return r, nil
}

// render executes a page into a buffer first so a template error never
// leaves a half-written response.
func (rd *renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	tpl, ok := rd.pages[name]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %q", name))
		return
	}
	p.CSRF = csrf.TemplateField(r)
	if p.Notice == "" {
		p.Notice = r.URL.Query().Get("notice")
	}
	if b, ok := bundleOf(r); ok {
		p.Session = b.Auth.Session()
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("response_write_failed", "error", err)
	}
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// redirectWithNotice implements Post/Redirect/Get, carrying a flash notice in the query.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	if notice != "" {
		u, err := url.Parse(path)
		if err == nil {
			q := u.Query()
			q.Set("notice", notice)
			u.RawQuery = q.Encode()
			path = u.String()
		}
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
