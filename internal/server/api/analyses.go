// Package api provides HTTP API handlers for romscope analyses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/romscope/internal/app"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/diag"
	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/store"
)

const defaultListLimit = 50

// Runner starts and tracks analyses.
type Runner interface {
	Submit(req app.Request) (*store.Analysis, error)
	Diagnostics(id string) (*diag.Log, bool)
	Cancel(id string) bool
}

// AnalysisHandler handles HTTP requests for analysis resources.
type AnalysisHandler struct {
	store    *store.Store
	runner   Runner
	validate *validator.Validate
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(s *store.Store, runner Runner) *AnalysisHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &AnalysisHandler{
		store:    s,
		runner:   runner,
		validate: v,
	}
}

// ServeHTTP routes /api/analyses, /api/analyses/{id} and their sub-resources.
func (h *AnalysisHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/analyses")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case sub == "log" && r.Method == http.MethodGet:
		h.log(w, r, id)
	case sub == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, r, id)
	case sub == "" || sub == "log" || sub == "cancel":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

type createAnalysisRequest struct {
	VideoPath      string   `json:"video_path" validate:"required"`
	Fingers        []string `json:"fingers" validate:"omitempty,dive,oneof=index middle ring pinky"`
	DistanceMetric string   `json:"distance_metric" validate:"omitempty,oneof=palm_plane wrist_line"`
}

type analysisResponse struct {
	*store.Analysis
	Results []store.FingerResult `json:"results,omitempty"`
	Running bool                 `json:"running"`
}

type listAnalysesResponse struct {
	Analyses []analysisResponse `json:"analyses"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (h *AnalysisHandler) running(id string) bool {
	if h.runner == nil {
		return false
	}
	_, ok := h.runner.Diagnostics(id)
	return ok
}

// list handles GET /api/analyses. Reports are omitted; fetch one analysis for its report.
func (h *AnalysisHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	analyses, err := h.store.Analyses().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list analyses")
		return
	}

	response := listAnalysesResponse{
		Analyses: make([]analysisResponse, 0, len(analyses)),
	}
	for _, a := range analyses {
		a.Report = nil
		response.Analyses = append(response.Analyses, analysisResponse{Analysis: a, Running: h.running(a.ID)})
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/analyses/{id} and returns the analysis with its results.
func (h *AnalysisHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.store.Analyses().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get analysis")
		return
	}

	results, err := h.store.Results().GetByAnalysisID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get results")
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{Analysis: a, Results: results, Running: h.running(id)})
}

// create handles POST /api/analyses and starts a new analysis.
func (h *AnalysisHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Analyses are not enabled")
		return
	}

	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	run := app.Request{
		VideoPath: req.VideoPath,
		Metric:    joint.DistanceMetric(req.DistanceMetric),
	}
	if len(req.Fingers) > 0 {
		fingers, err := detector.ParseFingers(strings.Join(req.Fingers, ","))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		run.Fingers = fingers
	}

	a, err := h.runner.Submit(run)
	if err != nil {
		if errors.Is(err, app.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, "Service is shutting down")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, analysisResponse{Analysis: a, Running: true})
}

// delete handles DELETE /api/analyses/{id}. Running analyses must be cancelled first.
func (h *AnalysisHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if h.running(id) {
		writeError(w, http.StatusConflict, "Analysis is running")
		return
	}

	if err := h.store.Analyses().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete analysis")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// cancel handles POST /api/analyses/{id}/cancel.
func (h *AnalysisHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if h.runner == nil || !h.runner.Cancel(id) {
		writeError(w, http.StatusNotFound, "Analysis is not running")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// log handles GET /api/analyses/{id}/log and exports the diagnostics as text.
func (h *AnalysisHandler) log(w http.ResponseWriter, r *http.Request, id string) {
	text, err := Diagnostics(h.store, h.runner, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get log")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, text)
}

// Diagnostics returns the diagnostics export of an analysis: the live log
// while it runs, the stored lines afterwards.
func Diagnostics(s *store.Store, runner Runner, id string) (string, error) {
	if runner != nil {
		if dl, ok := runner.Diagnostics(id); ok {
			return dl.String(), nil
		}
	}

	if _, err := s.Analyses().GetByID(id); err != nil {
		return "", err
	}
	lines, err := StoredLines(s, id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.String())
	}
	return b.String(), nil
}

// StoredLines loads the persisted diagnostics of an analysis.
func StoredLines(s *store.Store, id string) ([]diag.Line, error) {
	stored, err := s.Logs().GetByAnalysisID(id)
	if err != nil {
		return nil, err
	}
	lines := make([]diag.Line, len(stored))
	for i, l := range stored {
		lines[i] = diag.Line{Time: l.Time.Local(), Message: l.Message}
	}
	return lines, nil
}

// validationMessage turns validator errors into a short client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
