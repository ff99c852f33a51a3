// Package control implements the external control protocol: a
// newline-delimited JSON request/response/event wire format served
// over a Unix domain socket (no auth) or TCP (auth required), per
// spec.md's External Interfaces.
package control

import "encoding/json"

// Request is the wire envelope a client sends: {id, type, auth?, params?}.
type Request struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Auth   string          `json:"auth,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the wire envelope returned for one Request: Error is set
// on failure; otherwise Result carries the reply, and is omitted for
// requests that produce no result value.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event is a server-initiated message not tied to any request id.
type Event struct {
	Type string      `json:"type"`
	Body interface{} `json:"body"`
}

// StoppedBody is the payload of a "stopped" event.
type StoppedBody struct {
	Reason            string `json:"reason"`
	ThreadID          string `json:"thread_id"`
	AllThreadsStopped bool   `json:"all_threads_stopped"`
	Generation        uint64 `json:"generation,omitempty"`
}

// OutputBody is the payload of an "output" event: a line of program
// or runtime-generated text for a client console.
type OutputBody struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// InvalidatedBody is the payload of an "invalidated" event: tells
// clients which scopes to re-fetch rather than pushing full state.
type InvalidatedBody struct {
	Areas    []string `json:"areas"`
	ThreadID string   `json:"thread_id,omitempty"`
}

// TerminatedBody is the payload of a "terminated" event.
type TerminatedBody struct {
	Restart bool `json:"restart,omitempty"`
}

func errorResponse(id string, kind, message string) Response {
	return Response{ID: id, Error: &ErrorBody{Kind: kind, Message: message}}
}

func okResponse(id string, result interface{}) Response {
	return Response{ID: id, Result: result}
}
