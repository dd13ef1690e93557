package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListEmergencies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/emergencies" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"callSid":"A","status":"new","updatedAt":1},{"callSid":"B"},{"status":"orphan"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	records, err := c.ListEmergencies(context.Background())
	if err != nil {
		t.Fatalf("ListEmergencies: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "A" || records[0].Status != "new" {
		t.Errorf("records[0] = %+v", records[0])
	}
}

func TestListEmergencies_NonArrayIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	records, err := New(srv.URL, time.Second).ListEmergencies(context.Background())
	if err != nil {
		t.Fatalf("ListEmergencies: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestListEmergencies_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ListEmergencies(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", se.Code)
	}
	if se.Body != "database down" {
		t.Errorf("Body = %q", se.Body)
	}
}

func TestListEmergencies_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if _, err := New(srv.URL, time.Second).ListEmergencies(context.Background()); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestSubmitAndPatch(t *testing.T) {
	type call struct {
		method, path, body, contentType string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.EscapedPath(), string(b), r.Header.Get("Content-Type")})
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	out, err := c.Submit(ctx, "CA 1", []byte(`{"nature":"Fire"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("Submit response = %s", out)
	}
	if _, err := c.Patch(ctx, "CA1", []byte(`{"priority":"high"}`)); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].method != http.MethodPost || calls[0].path != "/api/emergencies/CA%201/submit" {
		t.Errorf("submit call = %+v", calls[0])
	}
	if calls[0].contentType != "application/json" {
		t.Errorf("content type = %q", calls[0].contentType)
	}
	if calls[1].method != http.MethodPatch || calls[1].path != "/api/emergencies/CA1" || calls[1].body != `{"priority":"high"}` {
		t.Errorf("patch call = %+v", calls[1])
	}
}

func TestSend_RejectsInvalidJSON(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	if _, err := c.Patch(context.Background(), "A", []byte(`{nope`)); err == nil {
		t.Fatal("expected error for invalid JSON body")
	}
}

func TestOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Last-Event-ID"); got != "41" {
			t.Errorf("Last-Event-ID = %q, want 41", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	body, err := New(srv.URL, time.Second).OpenStream(context.Background(), "/api/stations/__all__/stream", "41")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()
	b, _ := io.ReadAll(body)
	if string(b) != "data: {}\n\n" {
		t.Errorf("body = %q", b)
	}
}

func TestOpenStream_NoContentStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).OpenStream(context.Background(), "/s", "")
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
}

func TestCallStreamURL(t *testing.T) {
	c := New("http://example.test/", time.Second)
	if got, want := c.CallStreamURL("CA1"), "http://example.test/api/calls/CA1/stream"; got != want {
		t.Errorf("CallStreamURL = %q, want %q", got, want)
	}
}
