package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"directory/internal/app"
	"directory/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type categoryView struct {
	Category domain.Category `json:"category"`
	Label    string          `json:"label"`
}

// mountPublic registers the health check and the public read API.
func (s *Server) mountPublic(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/categories", h.listCategories)
		r.Get("/search", h.searchPublished)
		r.Get("/{category}", h.listPublished)
		r.Get("/{category}/{slug}", h.getPublished)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCacheable answers 304 when the client already holds this version.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// etagMatch applies the weak comparison If-None-Match calls for.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
			return true
		}
	}
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v: %w", err, domain.ErrInvalid)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body: trailing data: %w", domain.ErrInvalid)
	}
	return nil
}

// ---- query/path parsing ----

func categoryParam(r *http.Request) (domain.Category, error) {
	return domain.ParseCategory(chi.URLParam(r, "category"))
}

func refParam(r *http.Request) (domain.ListingRef, error) {
	c, err := categoryParam(r)
	if err != nil {
		return domain.ListingRef{}, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return domain.ListingRef{}, fmt.Errorf("id must be a positive integer: %w", domain.ErrInvalid)
	}
	return domain.ListingRef{Category: c, ID: id}, nil
}

func intQuery(q url.Values, name string) (int, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, domain.ErrInvalid)
	}
	if n == 0 && name == "limit" {
		return 0, fmt.Errorf("limit must be positive: %w", domain.ErrInvalid)
	}
	return n, nil
}

func boolQuery(q url.Values, name string) (*bool, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean: %w", name, domain.ErrInvalid)
	}
	return &b, nil
}

func strQuery(q url.Values, name string) *string {
	if s := strings.TrimSpace(q.Get(name)); s != "" {
		return &s
	}
	return nil
}

// categoriesQuery parses a comma separated category list; empty means all.
func categoriesQuery(q url.Values) ([]domain.Category, error) {
	var out []domain.Category
	for _, p := range strings.Split(q.Get("category"), ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		c, err := domain.ParseCategory(p)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", p, domain.ErrInvalid)
		}
		out = append(out, c)
	}
	return out, nil
}

// listQuery reads the filters shared by the public and admin list endpoints.
func listQuery(r *http.Request) (domain.ListQuery, error) {
	c, err := categoryParam(r)
	if err != nil {
		return domain.ListQuery{}, err
	}
	qs := r.URL.Query()
	q := domain.ListQuery{
		Category: c,
		City:     strQuery(qs, "city"),
		Area:     strQuery(qs, "area"),
		Q:        strQuery(qs, "q"),
		Sort:     strings.TrimSpace(qs.Get("sort")),
	}
	if q.Verified, err = boolQuery(qs, "verified"); err != nil {
		return q, err
	}
	if q.Limit, err = intQuery(qs, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intQuery(qs, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

// ---- public handlers ----

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryView, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, categoryView{Category: c, Label: c.Label()})
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) listPublished(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Q.ListPublished(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, page)
}

func (h *Handlers) getPublished(w http.ResponseWriter, r *http.Request) {
	c, err := categoryParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.Q.Published(r.Context(), c, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, l)
}

func (h *Handlers) searchPublished(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, true)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request, visibleOnly bool) {
	qs := r.URL.Query()
	cats, err := categoriesQuery(qs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(qs, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.Search(r.Context(), domain.SearchQuery{
		Q: qs.Get("q"), Categories: cats, VisibleOnly: visibleOnly, Limit: limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
