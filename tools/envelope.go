package tools

import (
	"encoding/json"
	"time"
)

// Envelope is the uniform result of a tool call
type Envelope struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Success returns a success envelope with the JSON payload
func Success(payload json.RawMessage) *Envelope {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &Envelope{
		Success: true,
		Payload: payload,
	}
}

// Failure returns a failure envelope with the message
func Failure(message string) *Envelope {
	return &Envelope{
		Success: false,
		Message: message,
	}
}

// JSON returns the envelope as JSON text
func (e *Envelope) JSON() string {
	js, _ := json.Marshal(e)
	return string(js)
}

// Decode unmarshals the payload into v
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Outcome of a tool call
type Outcome string

// Outcomes
const (
	OutcomeSuccess          Outcome = "success"
	OutcomeFailed           Outcome = "failed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalidArguments Outcome = "invalid_arguments"
)

// CallRecord describes a completed tool call
type CallRecord struct {
	ID       string        `json:"id"`
	Server   string        `json:"server"`
	Tool     string        `json:"tool"`
	Outcome  Outcome       `json:"outcome"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}
