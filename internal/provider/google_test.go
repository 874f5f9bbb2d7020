package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

const testKey = "secret-test-key"

var testSampling = SamplingSet{
	Text: Sampling{Temperature: 0.8, TopP: 0.9, TopK: 35, MaxOutputTokens: 4096},
	JSON: Sampling{Temperature: 0.7},
}

// captured is what fakeGemini saw on its last request.
type captured struct {
	mu      sync.Mutex
	path    string
	query   string
	apiKey  string
	payload geminiRequest
}

func (c *captured) get() (path, query, apiKey string, payload geminiRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.query, c.apiKey, c.payload
}

// fakeGemini starts an httptest server that answers generateContent with
// body and status, and records the last request it saw.
func fakeGemini(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.path = r.URL.Path
		seen.query = r.URL.RawQuery
		seen.apiKey = r.Header.Get("x-goog-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen.payload))
		seen.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestGoogleProvider_GenerateText(t *testing.T) {
	srv, seen := fakeGemini(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "Great "}, {"text": "job!"}]}, "finishReason": "STOP"}]
	}`)

	g := NewGoogleProvider(testKey, srv.URL+"/", "gemini-2.0-flash", testSampling, srv.Client())
	text, err := g.Generate(context.Background(), &Request{
		Prompt:            "Generate feedback",
		SystemInstruction: "You are a teacher's assistant.",
		Format:            FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, "Great job!", text)

	path, query, apiKey, payload := seen.get()

	// The key goes in the header, never in the URL.
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", path)
	assert.Empty(t, query)
	assert.Equal(t, testKey, apiKey)

	// Request translation.
	require.Len(t, payload.Contents, 1)
	assert.Equal(t, "user", payload.Contents[0].Role)
	assert.Equal(t, "Generate feedback", payload.Contents[0].Parts[0].Text)
	require.NotNil(t, payload.SystemInstruction)
	assert.Equal(t, "You are a teacher's assistant.", payload.SystemInstruction.Parts[0].Text)
	require.NotNil(t, payload.GenerationConfig)
	assert.Equal(t, "text/plain", payload.GenerationConfig.ResponseMIMEType)
	assert.InDelta(t, 0.8, payload.GenerationConfig.Temperature, 1e-6)
	assert.Equal(t, int32(35), payload.GenerationConfig.TopK)
	assert.Equal(t, int32(4096), payload.GenerationConfig.MaxOutputTokens)
}

func TestGoogleProvider_GenerateJSONFormat(t *testing.T) {
	srv, seen := fakeGemini(t, http.StatusOK, `{
		"candidates": [{"content": {"parts": [{"text": "{\"questions\":[]}"}]}}]
	}`)

	g := NewGoogleProvider(testKey, srv.URL, "m", testSampling, srv.Client())
	text, err := g.Generate(context.Background(), &Request{Prompt: "quiz", Format: FormatJSON})
	require.NoError(t, err)

	// The adapter does not interpret JSON; it hands back the raw text.
	assert.Equal(t, `{"questions":[]}`, text)

	_, _, _, payload := seen.get()
	assert.Nil(t, payload.SystemInstruction)
	assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMIMEType)
	assert.InDelta(t, 0.7, payload.GenerationConfig.Temperature, 1e-6)
	assert.Zero(t, payload.GenerationConfig.TopK)
}

func TestGoogleProvider_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "non-2xx",
			status:     http.StatusTooManyRequests,
			body:       `{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`,
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    "quota exceeded",
		},
		{
			name:       "non-json error body",
			status:     http.StatusBadGateway,
			body:       "bad gateway",
			wantStatus: http.StatusBadGateway,
			wantMsg:    "bad gateway",
		},
		{
			name:       "malformed envelope",
			status:     http.StatusOK,
			body:       `{"candidates": [`,
			wantStatus: http.StatusOK,
			wantMsg:    "decoding gemini response",
		},
		{
			name:       "no candidates",
			status:     http.StatusOK,
			body:       `{"candidates": []}`,
			wantStatus: http.StatusOK,
			wantMsg:    "no candidates",
		},
		{
			name:       "blocked prompt",
			status:     http.StatusOK,
			body:       `{"promptFeedback": {"blockReason": "SAFETY"}}`,
			wantStatus: http.StatusOK,
			wantMsg:    "SAFETY",
		},
		{
			name:       "empty candidate",
			status:     http.StatusOK,
			body:       `{"candidates": [{"content": {"parts": []}, "finishReason": "MAX_TOKENS"}]}`,
			wantStatus: http.StatusOK,
			wantMsg:    "MAX_TOKENS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeGemini(t, tt.status, tt.body)
			g := NewGoogleProvider(testKey, srv.URL, "m", testSampling, srv.Client())

			_, err := g.Generate(context.Background(), &Request{Prompt: "hi"})
			require.Error(t, err)

			var upErr *UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, "rest", upErr.Backend)
			assert.Equal(t, tt.wantStatus, upErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.NotContains(t, err.Error(), testKey)
		})
	}
}

func TestGoogleProvider_TransportErrorDoesNotLeakKey(t *testing.T) {
	// Nothing listens on this server once it is closed.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	g := NewGoogleProvider(testKey, srv.URL, "m", testSampling, http.DefaultClient)
	_, err := g.Generate(context.Background(), &Request{Prompt: "hi"})
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Zero(t, upErr.StatusCode)
	assert.NotContains(t, err.Error(), testKey)
}

func TestGoogleProvider_NoCredential(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	g := NewGoogleProvider("", srv.URL, "m", testSampling, srv.Client())
	_, err := g.Generate(context.Background(), &Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Zero(t, calls, "no network call without a credential")
}

// TestGoogleProvider_RecordReplay records one exchange with a fake Gemini
// to a cassette (with the key scrubbed), shuts the fake down, and replays
// the cassette offline.
func TestGoogleProvider_RecordReplay(t *testing.T) {
	srv, _ := fakeGemini(t, http.StatusOK, `{
		"candidates": [{"content": {"parts": [{"text": "Photosynthesis turns light into sugar."}]}}]
	}`)

	cassettePath := filepath.Join(t.TempDir(), "generate_text")
	matchMethodAndPath := func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && strings.HasSuffix(i.URL, r.URL.Path)
	}
	scrubKey := func(i *cassette.Interaction) error {
		i.Request.Headers.Del("X-Goog-Api-Key")
		return nil
	}

	req := &Request{Prompt: "What is photosynthesis?", SystemInstruction: "tutor"}

	// Record.
	rec, err := recorder.New(cassettePath,
		recorder.WithMode(recorder.ModeRecordOnly),
		recorder.WithHook(scrubKey, recorder.BeforeSaveHook),
	)
	require.NoError(t, err)

	g := NewGoogleProvider(testKey, srv.URL, "gemini-2.0-flash", testSampling, rec.GetDefaultClient())
	recorded, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, rec.Stop())

	raw, err := os.ReadFile(cassettePath + ".yaml")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testKey)

	// Replay with the upstream gone.
	srv.Close()

	rep, err := recorder.New(cassettePath,
		recorder.WithMode(recorder.ModeReplayOnly),
		recorder.WithMatcher(matchMethodAndPath),
	)
	require.NoError(t, err)
	defer rep.Stop()

	g = NewGoogleProvider(testKey, srv.URL, "gemini-2.0-flash", testSampling, rep.GetDefaultClient())
	replayed, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, recorded, replayed)
	assert.Equal(t, "Photosynthesis turns light into sugar.", replayed)
}

// slowGenerator blocks until its context is done.
type slowGenerator struct{}

func (slowGenerator) Name() string { return "slow" }

func (slowGenerator) Generate(ctx context.Context, _ *Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	g := WithTimeout(slowGenerator{}, 20*time.Millisecond)
	assert.Equal(t, "slow", g.Name())

	start := time.Now()
	_, err := g.Generate(context.Background(), &Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// echoGenerator returns the prompt.
type echoGenerator struct{ err error }

func (echoGenerator) Name() string { return "echo" }

func (e echoGenerator) Generate(_ context.Context, req *Request) (string, error) {
	return req.Prompt, e.err
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	text, err := WithTimeout(echoGenerator{}, time.Second).Generate(context.Background(), &Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	// Errors that are not deadline expiries are returned untouched.
	_, err = WithTimeout(echoGenerator{err: ErrNoCredential}, time.Second).Generate(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrNoCredential)
	var upErr *UpstreamError
	assert.False(t, errors.As(err, &upErr))
}
