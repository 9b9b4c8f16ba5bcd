// Package http provides HTTP server and handler implementations.
//
// This file implements a fluent builder for JSON, CSV and Markdown
// responses and the mapping from engine errors to status codes.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"fxledger/internal/fx"
	"fxledger/internal/ledger"
	"fxledger/internal/render"
	"fxledger/internal/report"
)

// ResponseBuilder provides a fluent API for building API responses.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	body, err := json.Marshal(v)
	if err != nil {
		b.err = err
		return b
	}
	b.headers["Content-Type"] = "application/json"
	b.body = append(body, '\n')
	return b
}

// Table encodes t in format.
func (b *ResponseBuilder) Table(t report.Table, format render.Format) *ResponseBuilder {
	switch format {
	case render.FormatCSV:
		var buf bytes.Buffer
		if err := render.WriteCSV(&buf, t); err != nil {
			b.err = err
			return b
		}
		b.headers["Content-Type"] = "text/csv; charset=utf-8"
		b.body = buf.Bytes()
		return b
	case render.FormatMarkdown:
		b.headers["Content-Type"] = "text/markdown; charset=utf-8"
		b.body = []byte(render.Markdown(t))
		return b
	}
	return b.JSON(t)
}

// Write sends the built response to the http.ResponseWriter. An encoding
// failure is sent as a 500 instead.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		ErrorResponse(http.StatusInternalServerError, "encode response: "+b.err.Error()).Write(w)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}

// statusFor maps an error to the status a client should see. Rates that
// cannot be resolved make the request unprocessable: the report is never
// rendered partially.
func statusFor(err error) int {
	var (
		outOfRange   *fx.OutOfRangeError
		unresolvable *fx.UnresolvablePairError
		conversion   *report.ConversionError
	)
	switch {
	case errors.Is(err, ErrBadParam):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownReport):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &outOfRange), errors.As(err, &unresolvable), errors.As(err, &conversion),
		errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ErrorFor creates the error response matching err.
func ErrorFor(err error) *ResponseBuilder {
	return ErrorResponse(statusFor(err), err.Error())
}
