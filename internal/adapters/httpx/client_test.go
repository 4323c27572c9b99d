package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"directory/internal/adapters/httpx"
	"directory/internal/domain"
)

func TestClient_GetJSON_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "abc"})
		}
	}))
	defer ts.Close()

	cl := httpx.New("test", 100, httpx.WithBackoff(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got map[string]any
	if err := cl.GetJSON(ctx, "thing", ts.URL, &got); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got["id"] != "abc" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 calls due to retries, got %d", hits)
	}
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cl := httpx.New("test", 100, httpx.WithBackoff(time.Millisecond), httpx.WithAttempts(2))
	err := cl.GetJSON(context.Background(), "thing", ts.URL, nil)

	var se *httpx.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		err := httpx.New("test", 100).GetJSON(context.Background(), "thing", ts.URL, nil)
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.code, tc.want, err)
		}
		if !httpx.IsMiss(err) {
			t.Fatalf("status %d should be a miss", tc.code)
		}
	}
}

func TestClient_PostJSON_SendsBodyAndHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		if r.Header.Get("X-Api-Key") != "k" || r.Header.Get("X-Field-Mask") != "*" {
			t.Errorf("missing headers: %v", r.Header)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer ts.Close()

	cl := httpx.New("test", 100, httpx.WithHeader("X-Api-Key", "k"))
	var out map[string]string
	err := cl.PostJSON(context.Background(), "echo", ts.URL, map[string]string{"q": "pizza"},
		http.Header{"X-Field-Mask": {"*"}}, &out)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out["echo"] != "pizza" {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestClient_BadRequestIsNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer ts.Close()

	err := httpx.New("test", 100).GetJSON(context.Background(), "thing", ts.URL, nil)
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.Code != 400 || se.Body != "nope" {
		t.Fatalf("unexpected err: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected a single call, got %d", hits)
	}
}
