package model

import "fmt"

// OutcomeKind classifies the result of one generation attempt.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeServerError  OutcomeKind = "server_error"
	OutcomeTimeout      OutcomeKind = "timeout"
	OutcomeNetworkError OutcomeKind = "network_error"
	OutcomeIncomplete   OutcomeKind = "incomplete_response"
)

// Outcome is the tagged result of a single attempt against the generation
// endpoint. Which fields are meaningful depends on Kind:
//
//	success:        Headline, Body, Persona (optional), Raw
//	server_error:   Status, Message
//	timeout:        -
//	network_error:  Message
//	incomplete:     Raw
type Outcome struct {
	Kind OutcomeKind

	Headline string
	Body     string
	Persona  string
	Raw      []byte

	Status  int
	Message string
}

// Retryable reports whether the attempt should be retried. Every outcome
// except success is retryable; there is no fatal classification.
func (o Outcome) Retryable() bool {
	return o.Kind != OutcomeSuccess
}

// Describe renders the human-readable error text written to the result sink
// while the loop keeps retrying.
func (o Outcome) Describe() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "success"
	case OutcomeServerError:
		return fmt.Sprintf("The generation service reported an error: %s. Retrying.", o.Message)
	case OutcomeTimeout:
		return "The generation service did not respond in time. Retrying."
	case OutcomeNetworkError:
		return fmt.Sprintf("Could not reach the generation service: %s. Retrying.", o.Message)
	case OutcomeIncomplete:
		return "The generation service returned an incomplete article. Retrying."
	default:
		return fmt.Sprintf("unknown outcome %q", o.Kind)
	}
}
