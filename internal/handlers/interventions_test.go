package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/orchestrator"
)

type fakeInterventionService struct {
	items map[string]*models.Intervention
}

func newFakeInterventionService(items ...*models.Intervention) *fakeInterventionService {
	s := &fakeInterventionService{items: make(map[string]*models.Intervention)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *fakeInterventionService) Get(_ context.Context, id string) (*models.Intervention, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return item, nil
}

func (s *fakeInterventionService) List(_ context.Context, filter models.InterventionFilter) ([]models.Intervention, error) {
	var out []models.Intervention
	for _, item := range s.items {
		if filter.SessionID != "" && item.SessionID != filter.SessionID {
			continue
		}
		if filter.Unresolved && item.Resolved() {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *fakeInterventionService) Resolve(_ context.Context, id string, action models.Resolution, notes string) (*models.Intervention, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if item.Resolved() {
		return nil, interfaces.ErrAlreadyResolved
	}
	now := time.Now()
	item.ResolvedAt = &now
	item.Resolution = action
	item.Notes = notes
	return item, nil
}

func (s *fakeInterventionService) ListPausedSessions(context.Context) ([]string, error) {
	var out []string
	for _, item := range s.items {
		if !item.Resolved() {
			out = append(out, item.SessionID)
		}
	}
	return out, nil
}

func sampleIntervention(id string) *models.Intervention {
	return &models.Intervention{
		ID:          id,
		SessionID:   "sess_1",
		UserID:      "user_1",
		Type:        models.InterventionCaptcha,
		Title:       "CAPTCHA detected",
		Description: "A turnstile challenge blocked the form.",
		CurrentURL:  "https://boards.greenhouse.io/acme/jobs/1",
		Snapshot:    "## Application form\n\nPlease verify you are human.",
		CreatedAt:   time.Now(),
	}
}

// recordingResumer captures resume requests from the resolve path
type recordingResumer struct {
	mu       sync.Mutex
	sessions []string
}

func (r *recordingResumer) Resume(_ context.Context, sessionID string, _ orchestrator.Request) *orchestrator.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessionID)
	return &orchestrator.Result{Status: models.AppSubmitted, SessionID: sessionID}
}

func (r *recordingResumer) resumed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sessions...)
}

func newInterventionServer(t *testing.T, service InterventionService) *httptest.Server {
	return newInterventionServerWithResumer(t, service, nil)
}

func newInterventionServerWithResumer(t *testing.T, service InterventionService, resumer SessionResumer) *httptest.Server {
	t.Helper()
	handler := NewInterventionHandler(service, resumer, arbor.NewLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/interventions", handler.ListHandler)
	mux.HandleFunc("/api/interventions/paused-sessions", handler.PausedSessionsHandler)
	mux.HandleFunc("/api/interventions/", handler.ItemHandler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestListInterventions(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"), sampleIntervention("int_2"))
	server := newInterventionServer(t, service)

	resp, err := http.Get(server.URL + "/api/interventions?session_id=sess_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetInterventionNotFound(t *testing.T) {
	server := newInterventionServer(t, newFakeInterventionService())

	resp, err := http.Get(server.URL + "/api/interventions/int_missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveIntervention(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	server := newInterventionServer(t, service)

	body := strings.NewReader(`{"action":"continue","notes":"solved manually"}`)
	resp, err := http.Post(server.URL+"/api/interventions/int_1/resolve", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, service.items["int_1"].Resolved())
	assert.Equal(t, models.ResolveContinue, service.items["int_1"].Resolution)
	assert.Equal(t, "solved manually", service.items["int_1"].Notes)
}

func TestResolveContinueResumesSession(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	resumer := &recordingResumer{}
	server := newInterventionServerWithResumer(t, service, resumer)

	body := strings.NewReader(`{"action":"continue"}`)
	resp, err := http.Post(server.URL+"/api/interventions/int_1/resolve", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(resumer.resumed()) == 1
	}, 2*time.Second, 10*time.Millisecond, "resolve with continue must hand the session to the orchestrator")
	assert.Equal(t, "sess_1", resumer.resumed()[0])
}

func TestResolveCancelDoesNotResume(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	resumer := &recordingResumer{}
	server := newInterventionServerWithResumer(t, service, resumer)

	body := strings.NewReader(`{"action":"cancel"}`)
	resp, err := http.Post(server.URL+"/api/interventions/int_1/resolve", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, resumer.resumed())
}

func TestResolveTwiceConflicts(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	server := newInterventionServer(t, service)

	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		body := strings.NewReader(`{"action":"cancel"}`)
		resp, err := http.Post(server.URL+"/api/interventions/int_1/resolve", "application/json", body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, "attempt %d", i+1)
	}
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	server := newInterventionServer(t, service)

	body := strings.NewReader(`{"action":"shrug"}`)
	resp, err := http.Post(server.URL+"/api/interventions/int_1/resolve", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, service.items["int_1"].Resolved())
}

func TestViewRendersSnapshotHTML(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	server := newInterventionServer(t, service)

	resp, err := http.Get(server.URL + "/api/interventions/int_1/view")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	html := string(buf[:n])
	assert.Contains(t, html, "<h1>CAPTCHA detected</h1>")
	assert.Contains(t, html, "<h2>Application form</h2>")
}

func TestPausedSessions(t *testing.T) {
	service := newFakeInterventionService(sampleIntervention("int_1"))
	server := newInterventionServer(t, service)

	resp, err := http.Get(server.URL + "/api/interventions/paused-sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
