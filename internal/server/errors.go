package server

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnconfigured means no generative model API key is set.
	ErrUnconfigured = errors.New("api key not configured")
	// ErrModelUnavailable means every candidate model failed.
	ErrModelUnavailable = errors.New("no suitable gemini model found")
	// ErrInvalidModelOutput means the model reply was not valid JSON.
	ErrInvalidModelOutput = errors.New("model returned invalid json")
	// ErrUnavailable means the history store could not be reached.
	ErrUnavailable = errors.New("history store unavailable")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// clientMessage is the error text /api/footprint passes through to callers.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnconfigured):
		return "API Key not configured"
	case errors.Is(err, ErrModelUnavailable):
		return "No suitable Gemini model found."
	default:
		return err.Error()
	}
}
