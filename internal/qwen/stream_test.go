package qwen

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{BaseURL: baseURL, Logger: testLogger()})
}

func TestStreamDecoderGrammar(t *testing.T) {
	body := strings.Join([]string{
		"",
		": keep-alive comment, ignored",
		`data: {"choices":[{"delta":{"content":"hello "}}]}`,
		"data: {not valid json",
		`data: {"choices":[]}`,
		`data: {"choices":[{"delta":{"content":"world"}}]}`,
		`data: {"choices":[{"finish_reason":"stop"}]}`,
		`data: {"choices":[{"delta":{"content":"after finish"}}]}`,
	}, "\n")

	dec := newStreamDecoder(strings.NewReader(body), testLogger())

	ev, err := dec.Next()
	if err != nil || ev.Delta != "hello " {
		t.Fatalf("first event = %+v, %v; want delta %q", ev, err, "hello ")
	}
	ev, err = dec.Next()
	if err != nil || ev.Delta != "world" {
		t.Fatalf("second event = %+v, %v; want delta %q", ev, err, "world")
	}
	ev, err = dec.Next()
	if err != nil || !ev.Finish {
		t.Fatalf("third event = %+v, %v; want finish", ev, err)
	}
}

func TestStreamDecoderEOF(t *testing.T) {
	dec := newStreamDecoder(strings.NewReader("\nnot a data line\n"), testLogger())
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func streamHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode completion request: %v", err)
		}
		if !req.Stream || req.SessionID == "" || req.ChatID == "" || req.ID == "" {
			t.Errorf("incomplete completion request: %+v", req)
		}
		for _, line := range lines {
			io.WriteString(w, line+"\n")
		}
	}
}

func TestStreamCompletionExplicitFinish(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		`data: {"choices":[{"delta":{"content":"part one "}}]}`,
		`data: {"choices":[{"delta":{"content":"part two"}}]}`,
		`data: {"choices":[{"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.StreamCompletion(t.Context(), "tok", "cookie", &ChatContext{SessionID: "s", ChatID: "ch", AssistantMsgID: "a"}, FileInfoFromID("f1"), "prompt")
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if got != "part one part two" {
		t.Errorf("result = %q", got)
	}
}

func TestStreamCompletionEOFAfterDeltas(t *testing.T) {
	// Truncated streams still succeed once content has arrived.
	srv := httptest.NewServer(streamHandler(t, []string{
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: {"choices":[{"delta":{"content":"c"}}]}`,
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.StreamCompletion(t.Context(), "tok", "cookie", &ChatContext{SessionID: "s", ChatID: "ch", AssistantMsgID: "a"}, FileInfoFromID("f1"), "prompt")
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if got != "abc" {
		t.Errorf("result = %q, want %q", got, "abc")
	}
}

func TestStreamCompletionNoContentFails(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		"",
		"data: {broken",
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if _, err := c.StreamCompletion(t.Context(), "tok", "cookie", &ChatContext{SessionID: "s", ChatID: "ch", AssistantMsgID: "a"}, FileInfoFromID("f1"), "prompt"); err == nil {
		t.Fatal("expected error for content-less stream")
	}
}

func TestStreamCompletionHTTPErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Unauthorized"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.StreamCompletion(t.Context(), "tok", "cookie", &ChatContext{SessionID: "s", ChatID: "ch", AssistantMsgID: "a"}, FileInfoFromID("f1"), "prompt")
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if qerr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", qerr.StatusCode)
	}
	if !strings.Contains(qerr.RawResponse, "Unauthorized") {
		t.Errorf("RawResponse = %q", qerr.RawResponse)
	}
}
