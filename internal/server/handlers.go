package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leapstack-labs/quill/pkg/directive"
	"github.com/leapstack-labs/quill/pkg/template"
	"github.com/leapstack-labs/quill/pkg/types"
)

// Headers understood or set by the render endpoint.
const (
	RenderIDHeader = "X-Render-ID"
	EncodingHeader = "X-Template-Encoding"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	names, err := s.engine.Names()
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"templates": names})
}

type variableInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type templateInfo struct {
	Name         string         `json:"name"`
	Encoding     string         `json:"encoding"`
	Fingerprint  string         `json:"fingerprint"`
	LastModified time.Time      `json:"last_modified"`
	Parameters   []variableInfo `json:"parameters"`
	Returns      []variableInfo `json:"returns"`
	Macros       []string       `json:"macros"`
}

func variables(vs []directive.Variable) []variableInfo {
	out := make([]variableInfo, len(vs))
	for i, v := range vs {
		out[i] = variableInfo{Name: v.Name, Type: v.Type.String()}
	}
	return out
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.engine.GetTemplateEncoding(chi.URLParam(r, "*"), r.Header.Get(EncodingHeader))
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	info := templateInfo{
		Name:         tpl.Name(),
		Encoding:     tpl.Encoding(),
		Fingerprint:  tpl.Fingerprint(),
		LastModified: tpl.LastModified(),
		Parameters:   variables(tpl.Parameters()),
		Returns:      variables(tpl.Returns()),
		Macros:       []string{},
	}
	for _, m := range tpl.Macros() {
		info.Macros = append(info.Macros, m.Key)
	}
	writeJSON(w, http.StatusOK, info)
}

type renderResult struct {
	RenderID string         `json:"render_id"`
	Template string         `json:"template"`
	Output   string         `json:"output"`
	Returns  map[string]any `json:"returns"`
}

// handleRender renders the template named by the rest of the path. Query
// values and form fields are parsed by the declared parameter types; a JSON
// body binds values as decoded.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set(RenderIDHeader, id)

	tpl, err := s.engine.GetTemplateEncoding(chi.URLParam(r, "*"), r.Header.Get(EncodingHeader))
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	params, err := s.params(w, r, tpl)
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	var sb strings.Builder
	returns, err := tpl.Execute(&sb, params)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	s.logger.Debug("rendered", "template", tpl.Name(), "render_id", id, "bytes", sb.Len())

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, renderResult{
			RenderID: id,
			Template: tpl.Name(),
			Output:   sb.String(),
			Returns:  returns,
		})
		return
	}
	w.Header().Set("Content-Type", contentType(tpl.Name()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// paramError is a request value that cannot be bound to its parameter.
type paramError struct {
	name string
	err  error
}

func (e *paramError) Error() string { return fmt.Sprintf("parameter %s: %v", e.name, e.err) }
func (e *paramError) Unwrap() error { return e.err }

func (s *Server) params(w http.ResponseWriter, r *http.Request, tpl *template.Template) (map[string]any, error) {
	declared := make(map[string]*types.Type, len(tpl.Parameters()))
	for _, p := range tpl.Parameters() {
		declared[p.Name] = p.Type
	}

	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			return decodeJSON(r, declared)
		}
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return parseValues(r.Form, declared)
	}
	return parseValues(r.URL.Query(), declared)
}

func decodeJSON(r *http.Request, declared map[string]*types.Type) (map[string]any, error) {
	params := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &paramError{name: "body", err: err}
	}
	for name, v := range params {
		t, ok := declared[name]
		if !ok {
			continue
		}
		cv, err := types.Convert(v, t)
		if err != nil {
			return nil, &paramError{name: name, err: err}
		}
		params[name] = cv
	}
	return params, nil
}

// parseValues binds text values. A sequence parameter takes every value
// given for its name; other parameters take the first.
func parseValues(values url.Values, declared map[string]*types.Type) (map[string]any, error) {
	params := make(map[string]any, len(values))
	for name, vs := range values {
		t, ok := declared[name]
		if !ok {
			params[name] = vs[0]
			continue
		}
		if t.Kind == types.KindList || t.Kind == types.KindArray {
			list := make([]any, len(vs))
			for i, v := range vs {
				pv, err := types.ParseValue(v, t.Elem)
				if err != nil {
					return nil, &paramError{name: name, err: err}
				}
				list[i] = pv
			}
			params[name] = list
			continue
		}
		pv, err := types.ParseValue(vs[0], t)
		if err != nil {
			return nil, &paramError{name: name, err: err}
		}
		params[name] = pv
	}
	return params, nil
}

func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "application/json" {
			return true
		}
	}
	return false
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "text/plain; charset=utf-8"
}

// handleEvents streams the names of changed templates as server-sent
// events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	updates := s.notifier.subscribe()
	defer s.notifier.unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-updates:
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", name); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
