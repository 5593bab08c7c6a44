package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetUpdatesParsesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/getUpdates" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "5" {
			t.Errorf("offset = %q, want 5", got)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":6,"message":{"message_id":1,"chat":{"id":42},"text":"/start"}}]}`))
	}))
	defer server.Close()

	client := NewTelegramClient(server.URL, "test-token")
	updates, err := client.GetUpdates(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 1 || updates[0].UpdateID != 6 {
		t.Fatalf("unexpected updates %+v", updates)
	}
	msg := updates[0].Message
	if msg == nil || msg.Chat.ID != 42 || msg.Text != "/start" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestSendMessagePostsPayload(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	client := NewTelegramClient(server.URL, "test-token")
	if err := client.SendMessage(context.Background(), 42, "hello <code>key</code>", true); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if payload["chat_id"].(float64) != 42 {
		t.Errorf("chat_id = %v", payload["chat_id"])
	}
	if payload["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", payload["parse_mode"])
	}
}

func TestSendMessageSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer server.Close()

	client := NewTelegramClient(server.URL, "test-token")
	err := client.SendMessage(context.Background(), 42, "hello", false)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifierMessageContainsKeyAndExpiry(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(NewTelegramClient(server.URL, "test-token"))
	expiry := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	if err := notifier.Deliver(context.Background(), 42, "deadbeefdeadbeefdeadbeefdeadbeef", expiry); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	text, _ := payload["text"].(string)
	if text == "" {
		t.Fatal("empty message text")
	}
	for _, want := range []string{"deadbeefdeadbeefdeadbeefdeadbeef", "2026-10-01", "<code>"} {
		if !strings.Contains(text, want) {
			t.Errorf("message %q missing %q", text, want)
		}
	}
}
