package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GenAIProvider implements Generator on top of Google's generative-ai-go
// SDK. It is the drop-in alternative to GoogleProvider for deployments
// that prefer the official client (auth options, transport tuning).
type GenAIProvider struct {
	client   *genai.Client // nil when no API key was configured
	model    string
	sampling SamplingSet
}

// NewGenAIProvider builds the SDK client once; it is safe for concurrent
// use and is shared across requests. Extra options are appended after the
// API key, which lets tests point the client at a fake endpoint.
//
// With an empty apiKey no client is built and every Generate call fails
// with ErrNoCredential, matching GoogleProvider.
func NewGenAIProvider(ctx context.Context, apiKey, model string, sampling SamplingSet, opts ...option.ClientOption) (*GenAIProvider, error) {
	p := &GenAIProvider{model: model, sampling: sampling}
	if apiKey == "" {
		return p, nil
	}

	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	p.client = cl
	return p, nil
}

// Name returns the backend identifier.
func (p *GenAIProvider) Name() string { return "genai" }

// Close releases the SDK client's connections.
func (p *GenAIProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate makes one GenerateContent call. A fresh GenerativeModel handle
// is taken per call because its config fields are mutable and the client
// is shared.
func (p *GenAIProvider) Generate(ctx context.Context, req *Request) (string, error) {
	if p.client == nil {
		return "", ErrNoCredential
	}

	m := p.client.GenerativeModel(p.model)
	m.GenerationConfig = generationConfig(p.sampling.For(req.Format), req.Format)
	if req.SystemInstruction != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		// The SDK surfaces non-2xx answers as *googleapi.Error; keep the
		// HTTP status so logs read the same as for the REST backend.
		status := 0
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return "", upstreamErr(p.Name(), status, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", upstreamErr(p.Name(), 0, err)
	}
	return text, nil
}

// generationConfig maps Sampling onto the SDK's pointer-valued config.
// Zero values stay nil so the service applies its defaults.
func generationConfig(s Sampling, f Format) genai.GenerationConfig {
	gc := genai.GenerationConfig{ResponseMIMEType: f.MIMEType()}
	if s.Temperature != 0 {
		gc.Temperature = ptr(s.Temperature)
	}
	if s.TopP != 0 {
		gc.TopP = ptr(s.TopP)
	}
	if s.TopK != 0 {
		gc.TopK = ptr(s.TopK)
	}
	if s.MaxOutputTokens != 0 {
		gc.MaxOutputTokens = ptr(s.MaxOutputTokens)
	}
	return gc
}

// responseText joins the text parts of the first candidate that has
// content. Non-text parts are skipped.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("genai returned no candidates")
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		found := false
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
				found = true
			}
		}
		if found {
			return sb.String(), nil
		}
	}
	return "", errors.New("genai returned no text parts")
}

func ptr[T any](v T) *T { return &v }
