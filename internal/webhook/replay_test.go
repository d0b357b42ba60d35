package webhook

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestReplayQueueDrainsDeferred(t *testing.T) {
	var calls atomic.Int32
	var gotBody atomic.Value
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotBody.Store(r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusOK)
	}

	q := NewReplayQueue(10, nil)
	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("Body", "my sink is leaking")
	if !q.Defer(handler, "/sms", form) {
		t.Fatal("defer should accept the event")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued, got %d", q.Len())
	}

	if n := q.Drain(context.Background()); n != 1 {
		t.Fatalf("expected 1 replayed, got %d", n)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", calls.Load())
	}
	if gotBody.Load() != "my sink is leaking" {
		t.Fatalf("replay lost the form body: %v", gotBody.Load())
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, has %d", q.Len())
	}
}

func TestReplayQueueRequeuesServerErrors(t *testing.T) {
	var calls atomic.Int32
	failing := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}

	q := NewReplayQueue(10, nil).WithMaxAttempts(3)
	q.Defer(failing, "/sms", url.Values{})

	if n := q.Drain(context.Background()); n != 0 {
		t.Fatalf("failed replay must not count as success, got %d", n)
	}
	if q.Len() != 1 {
		t.Fatalf("server error should re-park the event, len=%d", q.Len())
	}

	q.Drain(context.Background())
	q.Drain(context.Background())
	if q.Len() != 0 {
		t.Fatalf("event should be dropped after max attempts, len=%d", q.Len())
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestReplayQueueEvictsOldestWhenFull(t *testing.T) {
	var served []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		served = append(served, r.PostForm.Get("CallSid"))
	}

	q := NewReplayQueue(2, nil)
	for _, sid := range []string{"CA1", "CA2", "CA3"} {
		form := url.Values{}
		form.Set("CallSid", sid)
		q.Defer(handler, "/voice", form)
	}
	if q.Len() != 2 {
		t.Fatalf("buffer should stay bounded at 2, got %d", q.Len())
	}

	q.Drain(context.Background())
	if len(served) != 2 || served[0] != "CA2" || served[1] != "CA3" {
		t.Fatalf("expected oldest evicted, served %v", served)
	}
}

func TestReplayQueueNilSafe(t *testing.T) {
	var q *ReplayQueue
	if q.Defer(func(http.ResponseWriter, *http.Request) {}, "/sms", url.Values{}) {
		t.Fatal("nil queue must report defer failure")
	}
	if q.Len() != 0 {
		t.Fatal("nil queue has no length")
	}
	if q.Drain(context.Background()) != 0 {
		t.Fatal("nil queue drains nothing")
	}
}
