// Package generate implements the HTTP client for the article-generation
// endpoint and the classification of each attempt's outcome.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/casllmproject/bending-effect/internal/model"
)

// Response is the JSON body the generation service returns on success.
// persona_adopted is optional and does not affect success classification.
type Response struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
	Persona  string `json:"persona_adopted"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Client posts snapshots to the generation endpoint. Concurrent calls for the
// same snapshot are collapsed into a single in-flight request, preserving the
// one-outstanding-request model even if a run is accidentally started twice.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	group    singleflight.Group
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{},
	}
}

// Generate performs one attempt against the endpoint and classifies the
// result. It never returns an error: every failure mode maps to a retryable
// outcome.
func (c *Client) Generate(ctx context.Context, snap model.Snapshot) model.Outcome {
	v, _, _ := c.group.Do(snap.Fingerprint(), func() (any, error) {
		return c.attempt(ctx, snap), nil
	})
	return v.(model.Outcome)
}

func (c *Client) attempt(ctx context.Context, snap model.Snapshot) model.Outcome {
	payload, err := json.Marshal(snap)
	if err != nil {
		return model.Outcome{
			Kind:    model.OutcomeNetworkError,
			Message: fmt.Sprintf("encode request: %v", err),
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Outcome{
			Kind:    model.OutcomeNetworkError,
			Message: fmt.Sprintf("build request: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Outcome{Kind: model.OutcomeTimeout}
		}
		return model.Outcome{
			Kind:    model.OutcomeNetworkError,
			Message: err.Error(),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Outcome{Kind: model.OutcomeTimeout}
		}
		return model.Outcome{
			Kind:    model.OutcomeNetworkError,
			Message: fmt.Sprintf("read response: %v", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyServerError(resp.StatusCode, body)
	}

	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		// Malformed success bodies behave like missing fields: retry.
		return model.Outcome{Kind: model.OutcomeIncomplete, Raw: body}
	}
	if r.Headline == "" || r.Body == "" {
		return model.Outcome{Kind: model.OutcomeIncomplete, Raw: body}
	}

	return model.Outcome{
		Kind:     model.OutcomeSuccess,
		Headline: r.Headline,
		Body:     r.Body,
		Persona:  r.Persona,
		Raw:      body,
	}
}

func classifyServerError(status int, body []byte) model.Outcome {
	message := fmt.Sprintf("generation service returned status %d", status)
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		message = eb.Message
	}
	return model.Outcome{
		Kind:    model.OutcomeServerError,
		Status:  status,
		Message: message,
	}
}
