package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) *ipv4Server {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		if st >= 200 && st < 300 {
			w.WriteHeader(st)
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		w.WriteHeader(st)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
}

func TestGenerateRetriesOn429(t *testing.T) {
	okBody := GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}
	srv := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, okBody)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	okBody := GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}
	// Ask server to instruct a 1-second Retry-After, then succeed.
	srv := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, okBody)
	defer srv.Close()

	c := NewClientWithBaseURL("test", 5*time.Second, 3, 0, 0, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Generate(ctx, GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 900*time.Millisecond { // allow some scheduling variance
		t.Fatalf("expected at least ~1s delay due to Retry-After, got %v", elapsed)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	// Server returns 400 with X-Request-Id header
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test", 2*time.Second, 1, 10*time.Millisecond, 50*time.Millisecond, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Generate(ctx, GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
}

func TestGenerateSendsOpenAIPayload(t *testing.T) {
	var got map[string]any
	var auth string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "[]"}}}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("sk-test", 2*time.Second, 1, 0, 0, srv.URL+"/")
	resp, err := c.Generate(context.Background(), NewPromptRequest("gpt-4o-mini", "profile here", 0))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text() != "[]" {
		t.Fatalf("unexpected text: %q", resp.Text())
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if got["max_tokens"] != float64(DefaultMaxTokens) {
		t.Fatalf("expected default max_tokens, got %v", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", got["messages"])
	}
}

func TestGenerateMissingKeyFailsFast(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("", time.Second, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("gpt-4o-mini", "hi", 0))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("no request should be sent without a key")
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()
	c := NewClientWithBaseURL("k", time.Second, 1, 0, 0, srv.URL)
	if _, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1)); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestGenerateClassifiesAuth(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad key"}})
	}))
	defer srv.Close()
	c := NewClientWithBaseURL("k", time.Second, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T %v", err, err)
	}
}

func TestGenerateUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewClientWithBaseURL("k", time.Second, 1, 0, 0, "http://"+addr)
	_, err = c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", 100*time.Millisecond, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestPromptJoinsMessages(t *testing.T) {
	req := GenerateRequest{Messages: []Message{{Role: "system", Content: "a"}, {Role: "user", Content: ""}, {Role: "user", Content: "b"}}}
	if got := req.Prompt(); got != "a\n\nb" {
		t.Fatalf("unexpected prompt %q", got)
	}
	var nilResp *GenerateResponse
	if nilResp.Text() != "" {
		t.Fatalf("nil response should have empty text")
	}
}

func isErr[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   *APIError
		check func(error) bool
	}{
		{"unauthorized", &APIError{StatusCode: 401}, isErr[*AuthError]},
		{"forbidden", &APIError{StatusCode: 403}, isErr[*AuthError]},
		{"rate limit", &APIError{StatusCode: 429, Code: "rate_limit_exceeded"}, func(e error) bool {
			var x *RateLimitError
			return errors.As(e, &x) && x.RetryAfter == 2*time.Second
		}},
		{"quota on 429", &APIError{StatusCode: 429, Code: "insufficient_quota"}, isErr[*QuotaExceededError]},
		{"missing model", &APIError{StatusCode: 404}, isErr[*ModelNotFoundError]},
		{"bad request", &APIError{StatusCode: 400, Code: "context_length_exceeded"}, isErr[*BadRequestError]},
		{"server", &APIError{StatusCode: 503}, isErr[*ServerError]},
		{"other", &APIError{StatusCode: 409}, func(e error) bool {
			x, ok := e.(*APIError)
			return ok && x.StatusCode == 409
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyAPIError(tt.err, 2*time.Second); !tt.check(got) {
				t.Fatalf("unexpected classification %T: %v", got, got)
			}
		})
	}
}

func TestGenerateDoesNotRetryQuota(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota",
		}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", time.Second, 3, time.Millisecond, 5*time.Millisecond, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var qe *QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaExceededError, got %T %v", err, err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("quota errors must not be retried, got %d requests", n)
	}
}

func TestGenerateErrorTypeWhenCodeIsNull(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error","code":null}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", time.Second, 1, 0, 0, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var be *BadRequestError
	if !errors.As(err, &be) || be.Code != "invalid_request_error" || be.Message != "bad" {
		t.Fatalf("unexpected error: %T %v", err, err)
	}
}

func TestGenerateRetriesServerErrorsUntilExhausted(t *testing.T) {
	srv := testServerSequence(t, []int{502, 502, 502}, nil, nil)
	defer srv.Close()

	c := NewClientWithBaseURL("k", time.Second, 3, time.Millisecond, 5*time.Millisecond, srv.URL)
	_, err := c.Generate(context.Background(), NewPromptRequest("m", "hi", 1))
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError after retries, got %T %v", err, err)
	}
}
