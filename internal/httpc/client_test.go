package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"home"}`))
	}))
	defer srv.Close()

	var got struct{ Name string }
	if err := GetJSON(context.Background(), nil, srv.URL, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Name != "home" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestPostJSONRawBody(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out json.RawMessage
	err := PostJSON(context.Background(), srv.Client(), srv.URL, json.RawMessage(`{"j0":1}`), &out)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if seen != `{"j0":1}` {
		t.Errorf("server saw %q", seen)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("out = %s", out)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"waypoint not found"}`))
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), nil, srv.URL, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest || se.Message != "waypoint not found" {
		t.Errorf("got %+v", se)
	}
	if se.Error() != "http 400: waypoint not found" {
		t.Errorf("Error() = %q", se.Error())
	}
}
