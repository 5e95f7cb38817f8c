package training

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(d *Debrief) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 " + d.CaseID), nil
}

func newTestRouter(t *testing.T, renderer DebriefRenderer) (http.Handler, *fakeClock) {
	t.Helper()
	svc, clock := newTestService(t, nil, nil, nil)
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc, renderer))
	return r, clock
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startSession(t *testing.T, h http.Handler, caseID string) uuid.UUID {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/training/sessions", `{"case_id":"`+caseID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap.ID
}

func TestHandler_ListCases(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := do(t, h, http.MethodGet, "/training/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Cases []map[string]any `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Cases, 6)
	assert.NotContains(t, rec.Body.String(), "correct_diagnosis")
	assert.NotContains(t, rec.Body.String(), "Acute Anterior STEMI")
}

func TestHandler_StartSessionValidation(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing ids", `{}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"bad patient id", `{"patient_id":"nope"}`, http.StatusBadRequest},
		{"unknown case", `{"case_id":"gout"}`, http.StatusNotFound},
		{"no patient store", `{"patient_id":"` + uuid.NewString() + `"}`, http.StatusServiceUnavailable},
		{"demo case", `{"case_id":"stroke"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/training/sessions", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_RevealAndOrder(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	id := startSession(t, h, "stemi")
	base := "/training/sessions/" + id.String()

	rec := do(t, h, http.MethodPost, base+"/reveal", `{"category":"exam","item":"cardiac"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FindingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Finding.Value, "S4 gallop")
	assert.Equal(t, 98, resp.Session.Score)
	assert.Empty(t, resp.Notice)

	rec = do(t, h, http.MethodPost, base+"/reveal", `{"category":"exam","item":"cardiac"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = FindingResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Notice)
	assert.Equal(t, 98, resp.Session.Score)

	rec = do(t, h, http.MethodPost, base+"/reveal", `{"category":"labs","item":"cbc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, base+"/reveal", `{"category":"exam","item":"skin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/order", `{"test":"troponin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = FindingResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 93, resp.Session.Score)

	rec = do(t, h, http.MethodPost, base+"/order", `{"test":"biopsy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SessionIDs(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/training/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/training/sessions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_SetPhase(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	id := startSession(t, h, "stroke")
	base := "/training/sessions/" + id.String()

	rec := do(t, h, http.MethodPut, base+"/phase", `{"phase":"labs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, PhaseLabs, snap.Phase)

	rec = do(t, h, http.MethodPut, base+"/phase", `{"phase":"surgery"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SubmitAndDebrief(t *testing.T) {
	h, clock := newTestRouter(t, stubRenderer{})
	id := startSession(t, h, "pancreatic-cancer")
	base := "/training/sessions/" + id.String()

	rec := do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"  ","confidence":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"cancer","confidence":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"cancer","confidence":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/debrief.pdf", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"pancreatic cancer","confidence":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, StatusGrading, snap.Status)

	rec = do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"pancreatic cancer","confidence":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodPost, base+"/order", `{"test":"ctAbdomen"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	clock.Advance(2 * time.Second)
	rec = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap = Snapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, 170, snap.Outcome.FinalScore)

	rec = do(t, h, http.MethodGet, base+"/debrief.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id.String())
}

func TestHandler_DebriefRenderer(t *testing.T) {
	h, clock := newTestRouter(t, nil)
	id := startSession(t, h, "stroke")
	base := "/training/sessions/" + id.String()
	do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"stroke","confidence":5}`)
	clock.Advance(2 * time.Second)

	rec := do(t, h, http.MethodGet, base+"/debrief.pdf", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	h, clock = newTestRouter(t, stubRenderer{err: errors.New("no font")})
	id = startSession(t, h, "stroke")
	base = "/training/sessions/" + id.String()
	do(t, h, http.MethodPost, base+"/diagnosis", `{"diagnosis":"stroke","confidence":5}`)
	clock.Advance(2 * time.Second)

	rec = do(t, h, http.MethodGet, base+"/debrief.pdf", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_Exit(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	id := startSession(t, h, "meningitis")
	path := "/training/sessions/" + id.String()

	rec := do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
