package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/dmitrymomot/prokit/pkg/validator"
)

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON writes v as the response body with status 200.
func JSON(v any) Response { return jsonResponse{status: http.StatusOK, body: v} }

// JSONWithStatus writes v with the given status.
func JSONWithStatus(status int, v any) Response { return jsonResponse{status: status, body: v} }

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// JSONError maps err to a status code and ErrorBody. Message overrides the
// client-facing text when not empty.
func JSONError(err error, message string) Response {
	info := classifyError(err)
	body := ErrorBody{Error: info.Message, Code: info.Code, Details: info.Details}
	if message != "" {
		body.Error = message
	}
	return jsonResponse{status: info.StatusCode, body: body}
}

type templResponse struct {
	status    int
	component templ.Component
	options   []datastar.PatchElementOption
}

func (t templResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if IsDataStar(r) {
		return datastar.NewSSE(w, r).PatchElementTempl(t.component, t.options...)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if t.status != 0 {
		w.WriteHeader(t.status)
	}
	return t.component.Render(r.Context(), w)
}

// Templ renders component as a full page, or as an element patch for Datastar.
func Templ(component templ.Component, opts ...datastar.PatchElementOption) Response {
	return templResponse{component: component, options: opts}
}

// TemplWithStatus is Templ with an explicit status for non-Datastar requests.
func TemplWithStatus(status int, component templ.Component) Response {
	return templResponse{status: status, component: component}
}

func WithTarget(selector string) datastar.PatchElementOption {
	return datastar.WithSelector(selector)
}

func WithPatchMode(mode datastar.ElementPatchMode) datastar.PatchElementOption {
	return datastar.WithMode(mode)
}

type redirectResponse struct {
	url  string
	code int
}

func (rr redirectResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if IsDataStar(r) {
		return datastar.NewSSE(w, r).Redirect(rr.url)
	}
	http.Redirect(w, r, rr.url, rr.code)
	return nil
}

// Redirect answers 303 See Other, or a Datastar redirect script over SSE.
func Redirect(url string) Response { return redirectResponse{url: url, code: http.StatusSeeOther} }

type blobResponse struct {
	contentType string
	data        []byte
}

func (b blobResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", b.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.data)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(b.data)
	return err
}

// Blob writes raw bytes, e.g. a generated PNG.
func Blob(contentType string, data []byte) Response {
	return blobResponse{contentType: contentType, data: data}
}

type emptyResponse struct{ status int }

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

func Empty() Response { return emptyResponse{status: http.StatusNoContent} }

// ValidationDetails returns field messages when err carries validation errors.
func ValidationDetails(err error) map[string]string {
	if ve := validator.ExtractValidationErrors(err); len(ve) > 0 {
		return ve.Map()
	}
	return nil
}

type errorResponse struct{ err error }

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }

// Error hands err to the ErrorHandler configured on Wrap.
func Error(err error) Response { return errorResponse{err: err} }
