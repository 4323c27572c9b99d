package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"directory/internal/app"
	"directory/internal/domain"
)

// mountAdmin registers the admin JSON API and the dashboard pages behind
// AdminAuth. Both share the basic-auth realm, so both reject cross-origin writes.
func (s *Server) mountAdmin(h *Handlers, token string) {
	pages := newPages()
	s.mux.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth(token))
		r.Use(SameOrigin)

		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", h.adminStats)
			r.Get("/queue", h.adminQueue)
			r.Get("/search", h.adminSearch)
			r.Get("/{category}", h.adminList)
			r.Post("/{category}", h.adminCreate)
			r.Get("/{category}/{id}", h.adminGet)
			r.Patch("/{category}/{id}", h.adminUpdate)
			r.Delete("/{category}/{id}", h.adminDelete)
			r.Post("/{category}/{id}/extraction", h.adminEnqueue)
			r.Post("/{category}/{id}/{transition}", h.adminTransition)
		})

		r.Get("/", pages.dashboard(h))
		r.Get("/queue", pages.queue(h))
		r.Get("/{category}", pages.category(h))
		r.Post("/{category}/{id}/{action}", pages.action(h))
	})
}

func (h *Handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Q.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": st})
}

func queueQuery(r *http.Request) (domain.QueueQuery, error) {
	qs := r.URL.Query()
	var q domain.QueueQuery
	if s := strings.TrimSpace(qs.Get("category")); s != "" {
		c, err := domain.ParseCategory(s)
		if err != nil {
			return q, err
		}
		q.Category = &c
	}
	if s := strings.TrimSpace(qs.Get("status")); s != "" {
		st, err := domain.ParseExtractionStatus(s)
		if err != nil {
			return q, err
		}
		q.Status = st
	}
	var err error
	q.Limit, err = intQuery(qs, "limit")
	return q, err
}

func (h *Handlers) adminQueue(w http.ResponseWriter, r *http.Request) {
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
	if items == nil {
		items = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) adminSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false)
}

func adminListQuery(r *http.Request) (domain.ListQuery, error) {
	q, err := listQuery(r)
	if err != nil {
		return q, err
	}
	qs := r.URL.Query()
	if s := strings.TrimSpace(qs.Get("status")); s != "" {
		q.Status = domain.StatusFilter(s)
	}
	if s := strings.TrimSpace(qs.Get("extraction")); s != "" {
		st, err := domain.ParseExtractionStatus(s)
		if err != nil {
			return q, err
		}
		q.Extraction = &st
	}
	return q, nil
}

func (h *Handlers) adminList(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) adminCreate(w http.ResponseWriter, r *http.Request) {
	c, err := categoryParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in app.ListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.C.Create(r.Context(), c, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/api/"+string(c)+"/"+strconv.FormatInt(l.ID, 10))
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handlers) adminGet(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.Q.Listing(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handlers) adminUpdate(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in app.ListingUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.C.Update(r.Context(), ref, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handlers) adminDelete(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.C.Delete(r.Context(), ref); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) adminTransition(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := domain.ParseTransition(chi.URLParam(r, "transition"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.C.Transition(r.Context(), ref, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handlers) adminEnqueue(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.C.Enqueue(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, l)
}
