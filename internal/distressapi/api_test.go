package distressapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/guardian/internal/incident"
	incidentmem "github.com/linnemanlabs/guardian/internal/incident/memstore"
	"github.com/linnemanlabs/guardian/internal/pipeline"
	"github.com/linnemanlabs/guardian/internal/profile"
	profilemem "github.com/linnemanlabs/guardian/internal/profile/memstore"
)

// stubPipeline records submissions and returns a canned outcome.
type stubPipeline struct {
	mu   sync.Mutex
	subs []pipeline.Submission
	out  *pipeline.Outcome
	err  error
}

func (s *stubPipeline) Handle(_ context.Context, sub pipeline.Submission) (*pipeline.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func (s *stubPipeline) lastSubmission(t *testing.T) pipeline.Submission {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		t.Fatal("no submission reached the pipeline")
	}
	return s.subs[len(s.subs)-1]
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

type testFixture struct {
	router    chi.Router
	pipe      *stubPipeline
	incidents *incidentmem.Store
	profiles  *profilemem.Store
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		pipe: &stubPipeline{
			out: &pipeline.Outcome{
				IncidentID: "inc-test",
				Severity:   0.5,
				Status:     incident.StatusPending,
			},
		},
		incidents: incidentmem.New(),
		profiles:  profilemem.New(),
	}
	api := New(nil, f.pipe, f.incidents, f.profiles, &stubTranscriber{text: "hello"})
	f.router = chi.NewRouter()
	api.RegisterRoutes(f.router)
	return f
}

func (f *testFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &stubPipeline{}, incidentmem.New(), profilemem.New(), nil)
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_NilPipeline_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil pipeline")
		}
	}()
	New(log.Nop(), nil, incidentmem.New(), profilemem.New(), nil)
}

// Routing

func TestRegisterRoutes_DistressEndpoints(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"POST analyze", http.MethodPost, "/api/v1/distress/analyze", `{"user_id":"u1","transcript":"hi"}`, http.StatusOK},
		{"POST panic", http.MethodPost, "/api/v1/distress/panic", `{"user_id":"u1"}`, http.StatusOK},
		{"POST wearable", http.MethodPost, "/api/v1/distress/wearable", `{"user_id":"u1"}`, http.StatusOK},
		{"POST fall", http.MethodPost, "/api/v1/distress/fall", `{"user_id":"u1"}`, http.StatusOK},
		{"POST listen", http.MethodPost, "/api/v1/distress/listen", `{"user_id":"u1","audio":"AAEC"}`, http.StatusOK},
		{"POST sms", http.MethodPost, "/api/v1/distress/sms", `{"user_id":"u1","text":"hi"}`, http.StatusOK},
		{"GET analyze not allowed", http.MethodGet, "/api/v1/distress/analyze", "", http.StatusMethodNotAllowed},
		{"POST invalid JSON", http.MethodPost, "/api/v1/distress/analyze", `{bad`, http.StatusBadRequest},
		{"POST missing user_id", http.MethodPost, "/api/v1/distress/panic", `{}`, http.StatusBadRequest},
		{"unknown trigger", http.MethodPost, "/api/v1/distress/unknown", `{}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Submission mapping

func TestHandleAnalyze_MapsPayload(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	body := `{
		"user_id": "u1",
		"transcript": "someone is following me",
		"audio_events": ["glass_breaking"],
		"sensor_data": {"heart_rate": 140},
		"latitude": 12.9716,
		"longitude": 77.5946
	}`

	rec := f.do(t, http.MethodPost, "/api/v1/distress/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	sub, ok := f.pipe.lastSubmission(t).(*pipeline.AnalysisSubmission)
	if !ok {
		t.Fatalf("submission type = %T, want *AnalysisSubmission", f.pipe.lastSubmission(t))
	}
	if sub.UserID != "u1" {
		t.Errorf("user = %q, want u1", sub.UserID)
	}
	if sub.Transcript != "someone is following me" {
		t.Errorf("transcript = %q", sub.Transcript)
	}
	if len(sub.AudioEvents) != 1 || sub.AudioEvents[0] != "glass_breaking" {
		t.Errorf("audio events = %v", sub.AudioEvents)
	}
	if sub.SensorData["heart_rate"] != 140 {
		t.Errorf("sensor data = %v", sub.SensorData)
	}
	if sub.Latitude == nil || *sub.Latitude != 12.9716 {
		t.Errorf("latitude = %v, want 12.9716", sub.Latitude)
	}
	if sub.Kind != pipeline.SignalText {
		t.Errorf("kind = %q, want text", sub.Kind)
	}

	var out pipeline.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if out.IncidentID != "inc-test" {
		t.Errorf("incident_id = %q, want inc-test", out.IncidentID)
	}
}

func TestHandleDistress_TriggerTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		wantType string
	}{
		{"/api/v1/distress/panic", "*pipeline.PanicTrigger"},
		{"/api/v1/distress/wearable", "*pipeline.WearableTrigger"},
		{"/api/v1/distress/fall", "*pipeline.FallTrigger"},
		{"/api/v1/distress/listen", "*pipeline.ListenClip"},
		{"/api/v1/distress/sms", "*pipeline.SMSTrigger"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			f := newTestFixture(t)
			body := `{"user_id":"u1","audio":"AAEC","text":"hi"}`
			rec := f.do(t, http.MethodPost, tt.path, body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if got := fmt.Sprintf("%T", f.pipe.lastSubmission(t)); got != tt.wantType {
				t.Errorf("submission type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestHandleDistress_ClientInputError(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	f.pipe.err = fmt.Errorf("%w: listen clip requires an audio payload", pipeline.ErrClientInput)

	rec := f.do(t, http.MethodPost, "/api/v1/distress/listen", `{"user_id":"u1","audio":"AAEC"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleDistress_PipelineError(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	f.pipe.err = errors.New("store down")

	rec := f.do(t, http.MethodPost, "/api/v1/distress/panic", `{"user_id":"u1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// Incident queries

func TestHandleIncidents_RecentAndByUser(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		user := "u1"
		if i == 2 {
			user = "u2"
		}
		if _, err := f.incidents.Insert(ctx, &incident.Incident{
			UserID:   user,
			Severity: 0.9,
			Status:   incident.StatusConfirmed,
		}); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/incidents?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Incidents []incident.Incident `json:"incidents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Incidents) != 2 {
		t.Errorf("recent count = %d, want 2", len(resp.Incidents))
	}

	rec = f.do(t, http.MethodGet, "/api/v1/incidents/user/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Incidents) != 2 {
		t.Errorf("user count = %d, want 2", len(resp.Incidents))
	}
	for _, inc := range resp.Incidents {
		if inc.UserID != "u1" {
			t.Errorf("incident %q belongs to %q, want u1", inc.ID, inc.UserID)
		}
	}
}

func TestHandleIncidents_EmptyIsArray(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/incidents/user/ghost", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"incidents":[]`) {
		t.Errorf("body = %s, want empty array not null", rec.Body.String())
	}
}

// Profiles

func TestHandleProfile_PutThenGet(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	body := `{
		"user_id": "ignored-in-favor-of-path",
		"name": "Asha",
		"phone": "+915550001111",
		"emergency_contacts": [
			{"name": "Ravi", "phone": "5550002222", "carrier": "att"}
		]
	}`

	rec := f.do(t, http.MethodPut, "/api/v1/profile/u1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/profile/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var p profile.Profile
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.UserID != "u1" {
		t.Errorf("user_id = %q, want path value u1", p.UserID)
	}
	if p.Name != "Asha" || len(p.Contacts) != 1 {
		t.Errorf("profile = %+v", p)
	}
}

func TestHandleProfile_GetMissing(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/profile/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleLocation_Append(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/location", `{"user_id":"u1","latitude":12.97,"longitude":77.59}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	p, ok, err := f.profiles.Get(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("profile after location append: ok=%v err=%v", ok, err)
	}
	if len(p.LocationHistory) != 1 || p.LocationHistory[0].Latitude != 12.97 {
		t.Errorf("location history = %+v", p.LocationHistory)
	}
}

// Transcription

func TestHandleTranscribe(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/stt/transcribe", `{"audio":"AAEC"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp transcribeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transcript != "hello" {
		t.Errorf("transcript = %q, want hello", resp.Transcript)
	}
}

func TestHandleTranscribe_FailureReturnsSentinel(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{out: &pipeline.Outcome{}}
	api := New(nil, pipe, incidentmem.New(), profilemem.New(), &stubTranscriber{err: errors.New("down")})
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stt/transcribe", strings.NewReader(`{"audio":"AAEC"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "transcription not available") {
		t.Errorf("body = %s, want sentinel transcript", rec.Body.String())
	}
}

func TestHandleTranscribe_NoAudio(t *testing.T) {
	t.Parallel()

	f := newTestFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/stt/transcribe", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Fuzz

func FuzzDistressSubmission(f *testing.F) {
	fix := &testFixture{
		pipe:      &stubPipeline{out: &pipeline.Outcome{}},
		incidents: incidentmem.New(),
		profiles:  profilemem.New(),
	}
	api := New(nil, fix.pipe, fix.incidents, fix.profiles, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []string{
		"",
		"{}",
		`{"user_id":"u1"}`,
		`{"user_id":"u1","transcript":"help"}`,
		"{invalid json",
		"\x00\x01\x02\xff\xfe",
		strings.Repeat("a", 10000),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/distress/analyze", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusBadRequest {
			t.Errorf("POST analyze with body len=%d = %d, want 200 or 400", len(body), rec.Code)
		}
	})
}
