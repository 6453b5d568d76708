package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"healthsafe/internal/domain/apperr"
	"healthsafe/internal/platform/logger"
	"healthsafe/internal/platform/retry"
)

type fakeRepo struct {
	failures int
	failWith error
	calls    int
	events   []Event
}

func (f *fakeRepo) Append(ctx context.Context, e Event) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.failWith
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeRepo) Query(ctx context.Context, flt Filter) ([]Event, error) {
	out := make([]Event, 0)
	for _, e := range f.events {
		if flt.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func newTestRecorder(repo Repository, buf *bytes.Buffer) *Recorder {
	log := logger.New(logger.Options{Level: logger.Debug, Format: logger.FormatJSON, Output: buf})
	r := NewRecorder(repo, log)
	r.retry = retry.Policy{Attempts: 3, Backoff: time.Millisecond}
	return r
}

func TestRecord_RetriesTransientFailures(t *testing.T) {
	repo := &fakeRepo{failures: 2, failWith: fmt.Errorf("%w: conn reset", apperr.ErrTransient)}
	var buf bytes.Buffer
	r := newTestRecorder(repo, &buf)

	r.Record(context.Background(), Event{ActorID: "clin-1", Action: ActionRecordViewed, RecordID: "rec-1"})

	if repo.calls != 3 || len(repo.events) != 1 {
		t.Fatalf("expected 3 calls and 1 stored event, got calls=%d events=%d", repo.calls, len(repo.events))
	}
	e := repo.events[0]
	if e.ID == "" || e.OccurredAt.IsZero() || e.Metadata == nil {
		t.Fatalf("expected id, time and metadata filled, got %#v", e)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no error log, got %s", buf.String())
	}
}

func TestRecord_SwallowsAndLogsPermanentFailure(t *testing.T) {
	repo := &fakeRepo{failures: 10, failWith: fmt.Errorf("%w: db down", apperr.ErrTransient)}
	var buf bytes.Buffer
	r := newTestRecorder(repo, &buf)

	r.Record(context.Background(), Event{ActorID: "clin-1", Action: ActionAccessDenied})

	if repo.calls != 3 {
		t.Fatalf("expected bounded retry of 3 calls, got %d", repo.calls)
	}
	if !strings.Contains(buf.String(), "audit append failed") {
		t.Fatalf("expected error log, got %q", buf.String())
	}
}

func TestRecord_DoesNotRetryNonTransient(t *testing.T) {
	repo := &fakeRepo{failures: 10, failWith: errors.New("bad row")}
	var buf bytes.Buffer
	r := newTestRecorder(repo, &buf)

	r.Record(context.Background(), Event{Action: ActionGrantCreated})

	if repo.calls != 1 {
		t.Fatalf("expected single call, got %d", repo.calls)
	}
}

func TestQuery_NewestFirstWithLimits(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRecorder(repo, &bytes.Buffer{})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 600; i++ {
		repo.events = append(repo.events, Event{
			ID:         fmt.Sprintf("ev-%d", i),
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
			RecordID:   "rec-1",
			Action:     ActionRecordViewed,
		})
	}

	got, err := r.Query(context.Background(), Filter{RecordID: "rec-1"})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(got) != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, len(got))
	}
	if got[0].ID != "ev-599" {
		t.Fatalf("expected newest first, got %s", got[0].ID)
	}

	got, _ = r.Query(context.Background(), Filter{RecordID: "rec-1", Limit: 10_000})
	if len(got) != MaxLimit {
		t.Fatalf("expected max limit %d, got %d", MaxLimit, len(got))
	}
}
