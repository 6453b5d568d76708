package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"healthsafe/internal/adapters/notify"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/httpclient"

	"github.com/goccy/go-json"
)

func TestPublisher_PostsPayload(t *testing.T) {
	var (
		got notify.Payload
		key string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p, err := New(httpclient.New(time.Second), srv.URL)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	m := notifications.NewMessage(notifications.EventRequestAccepted, "c1", map[string]string{"request_id": "q1"}, time.Now())
	if err := p.Publish(context.Background(), m); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if key != m.ID || got.EventType != "request_accepted" || got.TemplateData["request_id"] != "q1" {
		t.Fatalf("unexpected delivery: key=%s payload=%#v", key, got)
	}
}

func TestPublisher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := New(nil, srv.URL)
	if err := p.Publish(context.Background(), notifications.NewMessage(notifications.EventRecordCreated, "p1", nil, time.Now())); err == nil {
		t.Fatalf("expected error on 503")
	}

	if _, err := New(nil, " "); err == nil {
		t.Fatalf("expected error on empty url")
	}
}
