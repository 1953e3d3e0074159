package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

type memoryStore struct {
	mu      sync.Mutex
	subs    map[string]Subscription
	listErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{subs: make(map[string]Subscription)}
}

func (m *memoryStore) Save(ctx context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Endpoint] = sub
	return nil
}

func (m *memoryStore) List(ctx context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out, nil
}

type recordingQueue struct {
	mu       sync.Mutex
	payloads []Payload
	failFor  string
}

func (q *recordingQueue) Enqueue(ctx context.Context, sub Subscription, payload Payload) error {
	if sub.Endpoint == q.failFor {
		return errors.New("stream unavailable")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

func validSubscription(endpoint string) string {
	return `{"endpoint":"` + endpoint + `","expirationTime":null,"keys":{"p256dh":"BNc...","auth":"tBH..."}}`
}

func newTestService(store SubscriptionStore, queue DeliveryQueue) *Service {
	return NewService(store, queue, Options{
		Title:          "In-vehicle environment monitor",
		Body:           "CO2 is forecast to exceed the threshold.",
		VAPIDPublicKey: "BLy5test",
		Now:            func() time.Time { return time.Date(2026, 1, 1, 9, 5, 7, 0, time.UTC) },
	})
}

func postJSON(t *testing.T, svc *Service, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	app := NewApp(svc)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, decoded
}

func TestSubscribe(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid subscription", validSubscription("https://push.example.com/abc"), http.StatusCreated},
		{"missing endpoint", `{"keys":{"p256dh":"a","auth":"b"}}`, http.StatusBadRequest},
		{"endpoint not a url", validSubscription("not a url"), http.StatusBadRequest},
		{"missing auth key", `{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"a"}}`, http.StatusBadRequest},
		{"invalid json", `{"endpoint":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			resp, body := postJSON(t, newTestService(store, &recordingQueue{}), "/subscribe", tt.body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("POST /subscribe status = %d, want %d (%v)", resp.StatusCode, tt.wantStatus, body)
			}

			if tt.wantStatus == http.StatusCreated {
				if body["message"] != "Subscription saved" {
					t.Errorf("POST /subscribe message = %v, want Subscription saved", body["message"])
				}
				if len(store.subs) != 1 {
					t.Errorf("Expected 1 stored subscription, got %d", len(store.subs))
				}
			} else if len(store.subs) != 0 {
				t.Errorf("Rejected subscription should not be stored, got %d", len(store.subs))
			}
		})
	}
}

func TestSendNotification(t *testing.T) {
	store := newMemoryStore()
	queue := &recordingQueue{}
	svc := newTestService(store, queue)

	for _, ep := range []string{"https://push.example.com/a", "https://push.example.com/b"} {
		if err := svc.Subscribe(context.Background(), Subscription{Endpoint: ep, Keys: Keys{P256dh: "k", Auth: "a"}}); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	resp, body := postJSON(t, svc, "/sendNotification", "{}")

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /sendNotification status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if body["message"] != "Notifications sent" {
		t.Errorf("POST /sendNotification message = %v", body["message"])
	}
	if body["deliveries"] != float64(2) {
		t.Errorf("POST /sendNotification deliveries = %v, want 2", body["deliveries"])
	}

	if len(queue.payloads) != 2 {
		t.Fatalf("Expected 2 queued deliveries, got %d", len(queue.payloads))
	}
	p := queue.payloads[0]
	if p.ID == "" || p.ID != queue.payloads[1].ID {
		t.Errorf("Deliveries of one notification should share an id, got %q and %q", p.ID, queue.payloads[1].ID)
	}
	if p.Time != "09:05:07" {
		t.Errorf("Payload time = %q, want 09:05:07", p.Time)
	}
	if p.Title != "In-vehicle environment monitor" {
		t.Errorf("Payload title = %q", p.Title)
	}
}

func TestSendNotification_PartialFailure(t *testing.T) {
	store := newMemoryStore()
	queue := &recordingQueue{failFor: "https://push.example.com/broken"}
	svc := newTestService(store, queue)

	store.Save(context.Background(), Subscription{Endpoint: "https://push.example.com/ok"})
	store.Save(context.Background(), Subscription{Endpoint: "https://push.example.com/broken"})

	resp, body := postJSON(t, svc, "/sendNotification", "{}")

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /sendNotification status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if body["deliveries"] != float64(1) {
		t.Errorf("POST /sendNotification deliveries = %v, want 1", body["deliveries"])
	}
}

func TestSendNotification_NoSubscribers(t *testing.T) {
	resp, body := postJSON(t, newTestService(newMemoryStore(), &recordingQueue{}), "/sendNotification", "{}")

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /sendNotification status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if body["deliveries"] != float64(0) {
		t.Errorf("POST /sendNotification deliveries = %v, want 0", body["deliveries"])
	}
}

func TestSendNotification_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.listErr = errors.New("redis down")

	resp, body := postJSON(t, newTestService(store, &recordingQueue{}), "/sendNotification", "{}")

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("POST /sendNotification status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if body["error"] != true {
		t.Errorf("Expected JSON error body, got %v", body)
	}
}

func TestHealthAndVAPIDKey(t *testing.T) {
	app := NewApp(newTestService(newMemoryStore(), &recordingQueue{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/vapidPublicKey", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key, _ := io.ReadAll(resp.Body)
	if string(key) != "BLy5test" {
		t.Errorf("GET /vapidPublicKey = %q, want BLy5test", key)
	}
}

func TestVAPIDKey_NotConfigured(t *testing.T) {
	app := NewApp(NewService(newMemoryStore(), &recordingQueue{}, Options{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/vapidPublicKey", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /vapidPublicKey status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisStore(client, "test:subscriptions", "test:deliveries")
	ctx := context.Background()

	if err := store.Save(ctx, Subscription{Endpoint: "https://push.example.com/a"}); err == nil {
		t.Error("Save() expected error for unreachable redis, got nil")
	}
	if _, err := store.List(ctx); err == nil {
		t.Error("List() expected error for unreachable redis, got nil")
	}
	if err := store.Enqueue(ctx, Subscription{}, Payload{ID: "x"}); err == nil {
		t.Error("Enqueue() expected error for unreachable redis, got nil")
	}
}
