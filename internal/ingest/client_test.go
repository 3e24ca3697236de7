package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetJSONStatusErrors(t *testing.T) {
	cases := []struct {
		name      string
		handler   http.HandlerFunc
		code      int
		retryable bool
	}{
		{"500", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "internal error", 500) }, 500, true},
		{"404", http.NotFound, 404, false},
		{"429", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(429) }, 429, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			var v any
			err := getJSON(context.Background(), NewHTTPClient(2*time.Second), srv.URL, nil, &v)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if se.Code != tc.code || se.Retryable() != tc.retryable {
				t.Fatalf("got code %d retryable %v", se.Code, se.Retryable())
			}
		})
	}
}

func TestGetJSONTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	var v any
	err := getJSON(context.Background(), NewHTTPClient(50*time.Millisecond), srv.URL, nil, &v)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestGetJSONEmptyURL(t *testing.T) {
	var v any
	if err := getJSON(context.Background(), NewHTTPClient(time.Second), "", nil, &v); !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
}
