package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	payloadschema "horse.fit/pulse/schema"
)

const (
	// RemoteEngineName identifies the HTTP inference engine.
	RemoteEngineName = "remote"
	// DefaultRemoteModel is sent when no model is configured.
	DefaultRemoteModel = "pulse-sentiment-v1"

	remoteRequestTimeout = 60 * time.Second
)

// RemoteEngine scores batches by calling a sentiment inference service:
// POST {model, inputs} to the endpoint, {results} back with one payload per
// input in input order. Results are schema-validated before they are
// accepted.
type RemoteEngine struct {
	endpointURL string
	model       string
	client      *http.Client
}

// NewRemoteEngine builds a remote engine for the given endpoint. The
// endpoint may omit the scheme (http is assumed) and the path (defaults to
// /v1/sentiment).
func NewRemoteEngine(endpoint, model string) (*RemoteEngine, error) {
	normalized, err := normalizeRemoteEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultRemoteModel
	}
	return &RemoteEngine{
		endpointURL: normalized,
		model:       trimmedModel,
		client: &http.Client{
			Timeout: remoteRequestTimeout,
		},
	}, nil
}

// Name implements Engine.
func (e *RemoteEngine) Name() string {
	return RemoteEngineName
}

// ModelName returns the configured model identifier.
func (e *RemoteEngine) ModelName() string {
	if e == nil {
		return ""
	}
	return e.model
}

// AnalyzeMany implements Engine. Blank texts are answered locally with the
// canonical empty payload; only real text goes over the wire.
func (e *RemoteEngine) AnalyzeMany(ctx context.Context, texts []string) ([]Payload, error) {
	if e == nil {
		return nil, &InferenceError{Engine: RemoteEngineName, Err: fmt.Errorf("remote engine is nil")}
	}

	results := make([]Payload, len(texts))
	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			results[i] = EmptyPayload()
			continue
		}
		inputs = append(inputs, trimmed)
		positions = append(positions, i)
	}
	if len(inputs) == 0 {
		return results, nil
	}

	payloads, err := e.requestPayloads(ctx, inputs)
	if err != nil {
		return nil, AsInferenceError(RemoteEngineName, err)
	}
	for i, payload := range payloads {
		results[positions[i]] = payload
	}
	return results, nil
}

func (e *RemoteEngine) requestPayloads(ctx context.Context, inputs []string) ([]Payload, error) {
	body, err := json.Marshal(remoteAnalyzeRequest{
		Model:  e.model,
		Inputs: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload remoteErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("inference endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("inference endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed remoteAnalyzeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if len(parsed.Results) != len(inputs) {
		return nil, fmt.Errorf("inference response count mismatch: requested=%d returned=%d", len(inputs), len(parsed.Results))
	}

	payloads := make([]Payload, 0, len(parsed.Results))
	for i, raw := range parsed.Results {
		if err := payloadschema.ValidateSentimentPayload(raw); err != nil {
			return nil, fmt.Errorf("inference result %d is invalid: %w", i, err)
		}
		var payload Payload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode inference result %d: %w", i, err)
		}
		payload.Signals.Normalize()
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

type remoteAnalyzeRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

type remoteAnalyzeResponse struct {
	Results []json.RawMessage `json:"results"`
}

type remoteErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeRemoteEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", fmt.Errorf("inference endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse inference endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("inference endpoint %q has no host", raw)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1/sentiment"
	}
	return parsed.String(), nil
}
