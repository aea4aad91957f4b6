// Package completion talks to the text completion service that both runs
// tasks and judges comparisons.
package completion

import (
	"context"
	"errors"
	"net/http"
)

// ErrEmptyResponse is returned when the service answers without any
// choices.
var ErrEmptyResponse = errors.New("completion service returned no choices")

type Request struct {
	Model string
	// System is sent as the system message when non-empty.
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	// Tag labels the call in the usage log ("task:budget", "judge").
	Tag string
}

type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Completer is anything that can answer a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPDoer abstracts the HTTP client so tests can stub transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float64) *float64 { return &t }
