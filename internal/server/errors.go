package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/loader"
	"github.com/leapstack-labs/quill/pkg/tplerr"
)

// Error kinds reported in error bodies.
const (
	KindNotFound  = "not_found"
	KindRequest   = "request"
	KindCompile   = "compile"
	KindRender    = "render"
	KindTooLarge  = "too_large"
	KindInternal  = "internal"
	KindParameter = "parameter"
)

// ErrorBody is the JSON body of a failed request.
type ErrorBody struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	RenderID string `json:"render_id,omitempty"`
	Template string `json:"template,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// classify maps err to a status code and an error body.
func classify(err error) (int, ErrorBody) {
	body := ErrorBody{Error: err.Error()}

	var (
		tooLarge *http.MaxBytesError
		param    *paramError
		compile  *tplerr.CompileError
		resource *tplerr.ResourceError
		backend  *tplerr.BackendError
		render   *tplerr.RenderError
	)
	switch {
	case errors.Is(err, engine.ErrEmptyName):
		body.Kind = KindRequest
		return http.StatusBadRequest, body
	case errors.As(err, &tooLarge):
		body.Kind = KindTooLarge
		return http.StatusRequestEntityTooLarge, body
	case errors.As(err, &param):
		body.Kind = KindParameter
		return http.StatusBadRequest, body
	case errors.As(err, &compile):
		body.Kind = KindCompile
		body.Error = compile.Err.Error()
		var pe tplerr.Error
		if errors.As(compile.Err, &pe) {
			body.Error = pe.Message()
		}
		body.Template = compile.Template
		body.Line = compile.Line
		body.Column = compile.Column
		body.Snippet = compile.Snippet
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &resource):
		body.Template = resource.Name
		if resource.Cause == nil || errors.Is(resource, loader.ErrNotFound) {
			body.Kind = KindNotFound
			return http.StatusNotFound, body
		}
		body.Kind = KindInternal
		return http.StatusInternalServerError, body
	case errors.As(err, &backend):
		body.Kind = KindCompile
		body.Template = backend.Template
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &render):
		body.Kind = KindRender
		return http.StatusInternalServerError, body
	}
	body.Kind = KindInternal
	return http.StatusInternalServerError, body
}

func (s *Server) writeError(w http.ResponseWriter, renderID string, err error) {
	status, body := classify(err)
	body.RenderID = renderID
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "render_id", renderID, "error", err)
	} else {
		s.logger.Debug("request rejected", "render_id", renderID, "kind", body.Kind, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
