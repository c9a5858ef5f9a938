package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/fill"
	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/pipeline"
	"github.com/sells-group/docfill/internal/profile"
	"github.com/sells-group/docfill/internal/registry"
	"github.com/sells-group/docfill/internal/store"
)

const maxBodyBytes = 10 << 20

type manualEditRequest struct {
	Value any `json:"value"`
}

type documentRequest struct {
	Filename      string             `json:"filename"`
	ExtractedData model.DocumentData `json:"extractedData"`
}

type formRequest struct {
	Schema struct {
		Name   string            `json:"name"`
		Fields []model.FormField `json:"fields"`
	} `json:"schema"`
	Pins []model.FieldMapping `json:"pins"`
}

type fillResponse struct {
	Mapping    model.MappingResult `json:"mapping"`
	Result     *model.FillResult   `json:"result"`
	Report     string              `json:"report"`
	ReportHTML string              `json:"reportHtml,omitempty"`
	Values     map[string]any      `json:"values"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.pipeline.Profiles().Get(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleManualEdit(w http.ResponseWriter, r *http.Request) {
	var req manualEditRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.pipeline.Profiles().ApplyManualEdit(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "field"), req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Filename == "" {
		writeError(w, r, requestError("filename is required"))
		return
	}
	res, err := s.pipeline.IngestData(r.Context(), chi.URLParam(r, "clientID"), req.Filename, req.ExtractedData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	schema, pins, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	out, err := s.pipeline.MapProfile(r.Context(), chi.URLParam(r, "clientID"), schema, pins)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Mapping)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	schema, pins, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	form := fill.NewMemoryForm(schema)
	out, err := s.pipeline.FillProfile(r.Context(), chi.URLParam(r, "clientID"), schema, form, pins)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := fillResponse{
		Mapping: out.Mapping,
		Result:  out.Result,
		Report:  out.Report,
		Values:  form.Values(),
	}
	if r.URL.Query().Get("report") == "html" {
		if resp.ReportHTML, err = fill.RenderReportHTML(out.Report); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (*model.FormSchema, []model.FieldMapping, bool) {
	var req formRequest
	if !decode(w, r, &req) {
		return nil, nil, false
	}
	name := req.Schema.Name
	if name == "" {
		name = "form"
	}
	schema, err := registry.BuildFormSchema(name, req.Schema.Fields)
	if err != nil {
		writeError(w, r, requestError(err.Error()))
		return nil, nil, false
	}
	pins, err := registry.NormalizePins(req.Pins)
	if err != nil {
		writeError(w, r, requestError(err.Error()))
		return nil, nil, false
	}
	return schema, pins, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, requestError("invalid request body"))
		return false
	}
	return true
}

// requestError is a validation failure reported to the caller as-is.
type requestError string

func (e requestError) Error() string { return string(e) }

// writeError maps err to a status code. Internal errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, pipeline.ErrClientRequired), errors.Is(err, profile.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, "client id and field are required"
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	default:
		zap.L().Error("server: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}
