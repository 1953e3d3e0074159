package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotify(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewNotificationClient(srv.URL+"/sendNotification", time.Second)
	if err := client.Notify(context.Background()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("Notify() method = %v, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("Notify() content-type = %v, want application/json", gotContentType)
	}
	if gotBody != "{}" {
		t.Errorf("Notify() body = %v, want {}", gotBody)
	}
}

func TestNotify_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewNotificationClient(srv.URL, time.Second).Notify(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("Notify() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestNotify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if err := NewNotificationClient(url, time.Second).Notify(context.Background()); err == nil {
		t.Error("Notify() expected error for unreachable dispatcher, got nil")
	}
}
