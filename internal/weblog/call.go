package weblog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Call is the invocation context of one intercepted handler call. It is built
// at call time and only read by the interceptor.
type Call struct {
	ID      string
	Type    string // fully-qualified declaring type, e.g. "controller.DeviceController"
	Method  string
	Args    []any
	Request *Request
}

// NewCall returns a Call with a fresh ID.
func NewCall(typeName, method string, req *Request, args ...any) Call {
	return Call{
		ID:      uuid.NewString(),
		Type:    typeName,
		Method:  method,
		Args:    args,
		Request: req,
	}
}

// Target returns "Type.Method".
func (c Call) Target() string {
	return c.Type + "." + c.Method
}

// Request is a snapshot of the inbound HTTP request taken for logging.
type Request struct {
	Method     string
	Path       string
	RemoteAddr string
	// Params holds the first value of every parameter.
	Params map[string]string
	// RawParams holds every value of every parameter.
	RawParams url.Values
	// Session is the session handle id; empty when no session was resolved.
	Session string
}

// Snapshot copies what the interceptor logs out of r. An already parsed
// PostForm is merged ahead of the query, in r.Form order. The body is never
// read here.
func Snapshot(r *http.Request, session string) *Request {
	raw := url.Values{}
	for k, vs := range r.PostForm {
		raw[k] = append(raw[k], vs...)
	}
	for k, vs := range r.URL.Query() {
		raw[k] = append(raw[k], vs...)
	}
	params := make(map[string]string, len(raw))
	for k, vs := range raw {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Params:     params,
		RawParams:  raw,
		Session:    session,
	}
}

// rawJSON renders the raw parameter map as JSON, keys sorted.
func (r *Request) rawJSON() string {
	if len(r.RawParams) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string][]string(r.RawParams))
	if err != nil {
		return fmt.Sprintf("%v", r.RawParams)
	}
	return string(b)
}

// formatArgs renders args as a bracketed list, e.g. "[42 lamp]".
func formatArgs(args []any) string {
	return fmt.Sprint(args)
}

// formatResult renders a handler result, "none" for nil.
func formatResult(v any) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprint(v)
}
