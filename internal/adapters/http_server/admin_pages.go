package httpserver

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"directory/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct{ tpl *template.Template }

func newPages() *pages {
	funcs := template.FuncMap{
		"label": func(c domain.Category) string { return c.Label() },
		"when":  when,
		"str":   str,
	}
	return &pages{tpl: template.Must(template.New("admin").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))}
}

func when(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// render buffers the page so a template error still yields a clean 500.
func (p *pages) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := p.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render admin page failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type pageBase struct {
	Title      string
	Flash      string
	Categories []domain.Category
}

func base(r *http.Request, title string) pageBase {
	return pageBase{Title: title, Flash: r.URL.Query().Get("flash"), Categories: domain.Categories}
}

func (p *pages) dashboard(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := h.Q.Stats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		p.render(w, "dashboard", struct {
			pageBase
			Stats []domain.CategoryStats
		}{base(r, "Dashboard"), st})
	}
}

func (p *pages) category(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := adminListQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		page, err := h.Q.List(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		prev := -1
		if page.Offset > 0 {
			prev = max(page.Offset-page.Limit, 0)
		}
		p.render(w, "category", struct {
			pageBase
			Category    domain.Category
			Page        domain.ListingsPage
			Status      domain.StatusFilter
			Q           string
			Statuses    []domain.StatusFilter
			Transitions []domain.Transition
			Return      string
			Prev        int
		}{
			base(r, q.Category.Label()), q.Category, page, q.Status, strings.TrimSpace(r.URL.Query().Get("q")),
			domain.StatusFilters, domain.Transitions, r.URL.RequestURI(), prev,
		})
	}
}

var queueStatuses = []domain.ExtractionStatus{
	domain.ExtractionQueued, domain.ExtractionRunning, domain.ExtractionFailed, domain.ExtractionDone,
}

func (p *pages) queue(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := queueQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		items, err := h.Q.Queue(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := q.Status
		if status == "" {
			status = domain.ExtractionQueued
		}
		p.render(w, "queue", struct {
			pageBase
			Items    []domain.Listing
			Status   domain.ExtractionStatus
			Statuses []domain.ExtractionStatus
			Return   string
		}{base(r, "Extraction queue"), items, status, queueStatuses, r.URL.RequestURI()})
	}
}

// action applies a transition or enqueues an extraction, then redirects back
// with the outcome in a flash message.
func (p *pages) action(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := refParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		act := chi.URLParam(r, "action")
		var l domain.Listing
		if act == "extraction" {
			l, err = h.C.Enqueue(r.Context(), ref)
		} else {
			var t domain.Transition
			if t, err = domain.ParseTransition(act); err == nil {
				l, err = h.C.Transition(r.Context(), ref, t)
			}
		}

		flash := ""
		switch {
		case err == nil && act == "extraction":
			flash = l.Name + ": extraction queued"
		case err == nil:
			flash = l.Name + ": " + act + " done"
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalid):
			flash = err.Error()
		default:
			log.Error().Err(err).Str("action", act).Int64("id", ref.ID).Msg("admin action failed")
			flash = "internal error"
		}
		http.Redirect(w, r, backURL(r.FormValue("return"), "/admin/"+string(ref.Category), flash), http.StatusSeeOther)
	}
}

// backURL keeps redirects on the admin pages and attaches the flash message.
func backURL(ret, fallback, flash string) string {
	u, err := url.Parse(ret)
	if ret == "" || err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/admin") {
		u, _ = url.Parse(fallback)
	}
	q := u.Query()
	q.Set("flash", flash)
	u.RawQuery = q.Encode()
	return u.String()
}
