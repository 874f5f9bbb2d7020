package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ---------------------------------------------------------------------------
// GoogleProvider struct + constructor
// ---------------------------------------------------------------------------

// GoogleProvider implements Generator against Gemini's REST API. It
// translates a Request into Gemini's generateContent format, makes the
// HTTP call, and pulls the generated text back out.
type GoogleProvider struct {
	apiKey   string       // Gemini API key (sent as a header, never in the URL)
	baseURL  string       // e.g. "https://generativelanguage.googleapis.com/v1beta"
	model    string       // e.g. "gemini-2.0-flash"
	sampling SamplingSet  // generation parameters per response format
	client   *http.Client // reusable HTTP client (manages connection pooling)
}

// NewGoogleProvider creates a GoogleProvider ready to make API calls.
// The *http.Client is injected so tests can hand in a recorder or a
// client pointed at httptest.Server. An empty apiKey is accepted here;
// every Generate call then fails with ErrNoCredential.
func NewGoogleProvider(apiKey, baseURL, model string, sampling SamplingSet, client *http.Client) *GoogleProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleProvider{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		sampling: sampling,
		client:   client,
	}
}

// Name returns the backend identifier.
func (g *GoogleProvider) Name() string {
	return "rest"
}

// ---------------------------------------------------------------------------
// Gemini API types (unexported — only this file uses them)
// ---------------------------------------------------------------------------

// geminiRequest is the top-level request body for Gemini's generateContent.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiContent represents one message. Gemini uses "parts" (an array)
// because it supports multimodal input; we always send a single text part.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiGenerationConfig holds generation parameters. Everything except
// the MIME type is omitempty so unset values fall back to Gemini's
// defaults.
type geminiGenerationConfig struct {
	Temperature      float32 `json:"temperature,omitempty"`
	TopP             float32 `json:"topP,omitempty"`
	TopK             int32   `json:"topK,omitempty"`
	MaxOutputTokens  int32   `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

// geminiResponse is the top-level response from generateContent.
type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiPromptFeedback is set when Gemini refuses the prompt outright.
type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// geminiErrorBody is the JSON shape Gemini uses for non-2xx responses.
type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// toGeminiRequest translates a Request into Gemini's format:
//  1. the system instruction goes into its own field, not into contents
//  2. the prompt becomes a single user content with one text part
//  3. the format picks the response MIME type and the sampling parameters
func toGeminiRequest(req *Request, sampling Sampling) *geminiRequest {
	gr := &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      sampling.Temperature,
			TopP:             sampling.TopP,
			TopK:             sampling.TopK,
			MaxOutputTokens:  sampling.MaxOutputTokens,
			ResponseMIMEType: req.Format.MIMEType(),
		},
	}

	if req.SystemInstruction != "" {
		gr.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}

	return gr
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

// Generate sends one non-streaming request to Gemini's generateContent
// endpoint and returns the generated text.
//
// The flow: translate request → HTTP POST → check status → decode → join parts.
func (g *GoogleProvider) Generate(ctx context.Context, req *Request) (string, error) {
	if g.apiKey == "" {
		return "", ErrNoCredential
	}

	body, err := json.Marshal(toGeminiRequest(req, g.sampling.For(req.Format)))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	// The endpoint pattern is: {baseURL}/models/{model}:generateContent.
	// The key travels in x-goog-api-key rather than ?key=, because
	// *url.Error embeds the full URL and would otherwise leak it.
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return "", upstreamErr(g.Name(), 0, fmt.Errorf("sending request to gemini: %w", err))
	}
	// We MUST close the response body or we'll leak TCP connections.
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", upstreamErr(g.Name(), httpResp.StatusCode, readGeminiError(httpResp.Body))
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&geminiResp); err != nil {
		return "", upstreamErr(g.Name(), httpResp.StatusCode, fmt.Errorf("decoding gemini response: %w", err))
	}

	text, err := candidateText(&geminiResp)
	if err != nil {
		return "", upstreamErr(g.Name(), httpResp.StatusCode, err)
	}
	return text, nil
}

// candidateText joins the text parts of the first candidate. Gemini can
// split one answer across several parts, so reading only Parts[0] would
// truncate long outputs.
func candidateText(resp *geminiResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned an empty candidate (finish reason %q)", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// readGeminiError extracts a diagnostic from an error response body. It
// reads at most 4 KiB so a misbehaving upstream can't blow up memory.
func readGeminiError(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil {
		return fmt.Errorf("reading error body: %w", err)
	}

	var eb geminiErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		return fmt.Errorf("gemini API error %s: %s", eb.Error.Status, eb.Error.Message)
	}
	return fmt.Errorf("gemini API error: %s", strings.TrimSpace(string(raw)))
}
