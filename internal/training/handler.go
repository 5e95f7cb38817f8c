package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"diagnostic-trainer/internal/cases"
)

// DebriefRenderer turns a debrief into a downloadable document.
type DebriefRenderer interface {
	Render(d *Debrief) ([]byte, error)
}

type Handler struct {
	svc      Service
	renderer DebriefRenderer
	validate *validator.Validate
}

// NewHandler wires the HTTP surface. renderer may be nil, in which case the
// debrief download is unavailable.
func NewHandler(svc Service, renderer DebriefRenderer) *Handler {
	return &Handler{svc: svc, renderer: renderer, validate: validator.New()}
}

type StartSessionRequest struct {
	CaseID    string `json:"case_id" validate:"required_without=PatientID"`
	PatientID string `json:"patient_id" validate:"omitempty,uuid"`
}

type RevealRequest struct {
	Category string `json:"category" validate:"required,oneof=history exam"`
	Item     string `json:"item" validate:"required"`
}

type OrderRequest struct {
	Test string `json:"test" validate:"required"`
}

type PhaseRequest struct {
	Phase string `json:"phase" validate:"required,oneof=initial history exam labs imaging diagnosis"`
}

// Blank diagnosis text is rejected by the session, not here.
type SubmitDiagnosisRequest struct {
	Diagnosis  string `json:"diagnosis"`
	Confidence int    `json:"confidence" validate:"min=1,max=5"`
}

type FindingResponse struct {
	Session *Snapshot `json:"session"`
	Finding Finding   `json:"finding"`
	Notice  string    `json:"notice,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, cases.ErrCaseNotFound),
		errors.Is(err, cases.ErrPatientNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrNotCompleted):
		status = http.StatusConflict
	case errors.Is(err, ErrEmptyDiagnosis):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrConfidenceOutOfRange),
		errors.Is(err, ErrUnknownPhase),
		errors.Is(err, cases.ErrUnknownItem),
		errors.Is(err, cases.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, cases.ErrPatientsUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cases": h.svc.ListCases()})
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		snap *Snapshot
		err  error
	)
	if req.PatientID != "" {
		// Validated as a uuid above.
		snap, err = h.svc.StartPatient(r.Context(), uuid.MustParse(req.PatientID))
	} else {
		snap, err = h.svc.StartDemo(r.Context(), req.CaseID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeFinding(w http.ResponseWriter, snap *Snapshot, f Finding, err error) {
	if err != nil && !errors.Is(err, ErrAlreadyRequested) {
		writeError(w, err)
		return
	}
	resp := FindingResponse{Session: snap, Finding: f}
	if err != nil {
		resp.Notice = fmt.Sprintf("%s/%s was already requested", f.Category, f.Item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req RevealRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, f, err := h.svc.Reveal(r.Context(), id, cases.Category(req.Category), req.Item)
	h.writeFinding(w, snap, f, err)
}

func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, f, err := h.svc.Order(r.Context(), id, req.Test)
	h.writeFinding(w, snap, f, err)
}

func (h *Handler) SetPhase(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req PhaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.svc.SetPhase(r.Context(), id, Phase(req.Phase))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubmitDiagnosis answers 202: the outcome shows up on the session once
// grading has finished.
func (h *Handler) SubmitDiagnosis(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SubmitDiagnosisRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.svc.Submit(r.Context(), id, req.Diagnosis, req.Confidence)
	if err != nil {
		if !isSoft(err) && !errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "Grading failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *Handler) DownloadDebrief(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		http.Error(w, "Debrief reports are not enabled", http.StatusNotImplemented)
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Debrief(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pdf, err := h.renderer.Render(d)
	if err != nil {
		http.Error(w, "Failed to render debrief", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="debrief_%s.pdf"`, id))
	w.Write(pdf)
}

func (h *Handler) ExitSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Exit(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/training/cases", h.ListCases)
	r.Post("/training/sessions", h.StartSession)
	r.Get("/training/sessions/{id}", h.GetSession)
	r.Delete("/training/sessions/{id}", h.ExitSession)
	r.Post("/training/sessions/{id}/reveal", h.Reveal)
	r.Post("/training/sessions/{id}/order", h.Order)
	r.Put("/training/sessions/{id}/phase", h.SetPhase)
	r.Post("/training/sessions/{id}/diagnosis", h.SubmitDiagnosis)
	r.Get("/training/sessions/{id}/debrief.pdf", h.DownloadDebrief)
}
