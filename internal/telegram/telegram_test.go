package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rexbot/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithBaseURL(srv.URL)), srv
}

func TestSendMessagePayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	keyboard := &models.Keyboard{InlineKeyboard: [][]models.InlineButton{{
		{Text: "Да", CallbackData: "consent_yes"},
	}}}
	if err := client.SendMessage(context.Background(), 42, "<b>привет</b>", keyboard); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != float64(42) || gotBody["text"] != "<b>привет</b>" || gotBody["parse_mode"] != "HTML" {
		t.Fatalf("payload = %v", gotBody)
	}
	if gotBody["reply_markup"] == nil {
		t.Fatal("keyboard not attached")
	}
}

func TestRateLimitResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":17}}`))
	})

	err := client.SendMessage(context.Background(), 42, "привет", nil)
	var rateLimit *RateLimitError
	if !errors.As(err, &rateLimit) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rateLimit.RetryAfter != 17*time.Second {
		t.Fatalf("retry after = %v, want 17s", rateLimit.RetryAfter)
	}
}

func TestAPIErrorResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := client.SendMessage(context.Background(), 42, "привет", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != 403 || !strings.Contains(apiErr.Description, "blocked") {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestGetUpdates(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":5,"username":"anna","first_name":"Анна"},"chat":{"id":5},"text":"привет"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":5},"data":"mode_diet"}}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 10, 30)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if gotBody["offset"] != float64(10) || gotBody["timeout"] != float64(30) {
		t.Fatalf("request = %v", gotBody)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "привет" || updates[0].Message.From.Username != "anna" {
		t.Fatalf("message update = %+v", updates[0])
	}
	if updates[1].Callback == nil || updates[1].Callback.Data != "mode_diet" {
		t.Fatalf("callback update = %+v", updates[1])
	}
}
