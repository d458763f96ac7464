package relay

import (
	"bufio"
	"fmt"
	"net/http"
)

// Response is a response the core or a user Responder produces. It is
// intentionally smaller than http.Response: this server never streams a
// body larger than a short diagnostic string.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ResponseBuilder accumulates a Response. Router.DefaultResponseBuilder
// returns one pre-populated with the configured default headers, so
// Responders never need to know about them.
type ResponseBuilder struct {
	statusCode int
	header     http.Header
	body       []byte
}

// newResponseBuilder creates a builder with the given headers already applied.
func newResponseBuilder(defaults *HeaderSet) *ResponseBuilder {
	h := make(http.Header)
	defaults.ApplyTo(h)
	return &ResponseBuilder{statusCode: http.StatusOK, header: h}
}

// Status sets the response status code.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header returns the underlying header map for direct mutation.
func (b *ResponseBuilder) Header() http.Header {
	return b.header
}

// Bytes sets the response body.
func (b *ResponseBuilder) Bytes(body []byte) *ResponseBuilder {
	b.body = body
	return b
}

// Build finalizes the response.
func (b *ResponseBuilder) Build() *Response {
	return &Response{StatusCode: b.statusCode, Header: b.header, Body: b.body}
}

// writeTo serializes the response as an HTTP/1.1 message. The connection is
// always closed after one response: this server never interprets more than
// one request per connection, so Connection: close is written unless the
// response already sets its own Connection header.
func (r *Response) writeTo(w *bufio.Writer) error {
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}
	if r.Header.Get("Content-Length") == "" {
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n", len(r.Body)); err != nil {
			return err
		}
	}
	if r.Header.Get("Connection") == "" {
		if _, err := fmt.Fprintf(w, "Connection: close\r\n"); err != nil {
			return err
		}
	}
	if err := r.Header.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		if _, err := w.Write(r.Body); err != nil {
			return err
		}
	}
	return w.Flush()
}

// notFoundResponse is the default 404 responder's output.
func notFoundResponse(defaults *HeaderSet) *Response {
	rb := newResponseBuilder(defaults).Status(http.StatusNotFound).Bytes([]byte("Not Found"))
	return rb.Build()
}

// badRequestResponse is used by the upgrade negotiator for every header
// validation failure. The body is always empty; extra, if set, adds
// diagnostic headers after the defaults.
func badRequestResponse(defaults *HeaderSet, extra *HeaderSet) *Response {
	rb := newResponseBuilder(defaults)
	extra.ApplyTo(rb.header)
	rb.Status(http.StatusBadRequest)
	return rb.Build()
}
