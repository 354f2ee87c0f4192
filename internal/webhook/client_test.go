package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("__secret") != "s3cret" {
			t.Errorf("expected secret in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Secret: "s3cret", Timeout: time.Second})
	res := c.Post(context.Background(), map[string]string{"x": "1"})
	if !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}
}

func TestPostRemoteFailureWithHTTP200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"ok":false}}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Secret: "s", Timeout: time.Second})
	res := c.Post(context.Background(), map[string]string{"x": "1"})
	if res.OK {
		t.Fatalf("expected ok=false despite HTTP 200, got %+v", res)
	}
}

func TestPostMissingURLOrSecret(t *testing.T) {
	c := New(Options{})
	res := c.Post(context.Background(), map[string]string{})
	if res.OK || res.Error != "missing_GAS_WEBAPP_URL_or_ITPLAYLAB_SECRET" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPostTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Secret: "s", Timeout: 10 * time.Millisecond})
	res := c.Post(context.Background(), map[string]string{})
	if res.OK || res.Error != "gas_timeout" {
		t.Fatalf("expected gas_timeout, got %+v", res)
	}
}

func TestPostInvalidJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Secret: "s", Timeout: time.Second})
	res := c.Post(context.Background(), map[string]string{})
	if res.OK || res.Error != "invalid_json_from_gas" {
		t.Fatalf("expected invalid_json_from_gas, got %+v", res)
	}
	if res.Raw == "" {
		t.Fatalf("expected raw body to be preserved")
	}
}
