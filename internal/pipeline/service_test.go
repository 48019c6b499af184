package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/guardian/internal/incident"
)

// stubIncidents records inserts and can be primed to fail.
type stubIncidents struct {
	mu        sync.Mutex
	inserted  []incident.Incident
	insertErr error
}

func (s *stubIncidents) Insert(_ context.Context, inc *incident.Incident) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return "", s.insertErr
	}
	id := fmt.Sprintf("inc-%03d", len(s.inserted)+1)
	inc.ID = id
	inc.CreatedAt = time.Now().UTC()
	s.inserted = append(s.inserted, *inc)
	return id, nil
}

func (s *stubIncidents) Recent(_ context.Context, _ int) ([]incident.Incident, error) {
	return nil, nil
}

func (s *stubIncidents) ByUser(_ context.Context, _ string, _ int) ([]incident.Incident, error) {
	return nil, nil
}

func (s *stubIncidents) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func (s *stubIncidents) last(t *testing.T) incident.Incident {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inserted) == 0 {
		t.Fatal("no incident persisted")
	}
	return s.inserted[len(s.inserted)-1]
}

// stubAssessor returns a fixed assessment and counts invocations.
type stubAssessor struct {
	mu          sync.Mutex
	result      *incident.Assessment
	calls       int
	transcripts []string
}

func (s *stubAssessor) Assess(_ context.Context, _, transcript string, _ []string, _ map[string]float64) *incident.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.transcripts = append(s.transcripts, transcript)
	return s.result
}

func (s *stubAssessor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubNotifier records the incidents it was asked to dispatch.
type stubNotifier struct {
	mu       sync.Mutex
	notified []incident.Incident
	result   bool
}

func (s *stubNotifier) Notify(_ context.Context, inc *incident.Incident) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = append(s.notified, *inc)
	return s.result
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notified)
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

type stubEmbeddings struct {
	mu       sync.Mutex
	upserted map[string]string
}

func (s *stubEmbeddings) Upsert(_ context.Context, incidentID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upserted == nil {
		s.upserted = map[string]string{}
	}
	s.upserted[incidentID] = text
	return nil
}

type serviceFixture struct {
	svc         *Service
	incidents   *stubIncidents
	assessor    *stubAssessor
	notifier    *stubNotifier
	transcriber *stubTranscriber
	embeddings  *stubEmbeddings
	queue       *DispatchQueue
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		incidents:   &stubIncidents{},
		assessor:    &stubAssessor{result: &incident.Assessment{Urgency: 0.5, Reason: "stub"}},
		notifier:    &stubNotifier{result: true},
		transcriber: &stubTranscriber{text: "all quiet here"},
		embeddings:  &stubEmbeddings{},
		queue:       NewDispatchQueue(2, 16, log.Nop()),
	}
	f.svc = NewService(f.incidents, f.assessor, f.notifier, f.transcriber, f.embeddings, f.queue, log.Nop(), nil)
	return f
}

// drain closes the queue and waits so async tasks are observable.
func (f *serviceFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.queue.Close(ctx); err != nil {
		t.Fatalf("queue close: %v", err)
	}
}

func TestHandle_AnalyzeAtThresholdDoesNotNotify(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.assessor.result = &incident.Assessment{Urgency: 0.70, Reason: "ambiguous"}

	out, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID:     "u1",
		Transcript: "something felt off",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if out.Severity != 0.70 {
		t.Errorf("severity = %v, want 0.70", out.Severity)
	}
	if out.Status != incident.StatusPending {
		t.Errorf("status = %q, want %q", out.Status, incident.StatusPending)
	}
	if got := f.notifier.count(); got != 0 {
		t.Errorf("notify attempts = %d, want 0 at exactly the threshold", got)
	}
}

func TestHandle_AnalyzeAboveThresholdNotifiesAfterPersist(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.assessor.result = &incident.Assessment{
		Urgency:            0.7000001,
		Reason:             "distress keywords",
		RecommendedActions: []string{"notify_contacts"},
	}

	out, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID:     "u1",
		Transcript: "please help me now",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if out.IncidentID == "" {
		t.Fatal("expected incident ID")
	}
	if got := f.notifier.count(); got != 1 {
		t.Fatalf("notify attempts = %d, want 1", got)
	}
	f.notifier.mu.Lock()
	notified := f.notifier.notified[0]
	f.notifier.mu.Unlock()
	if notified.ID != out.IncidentID {
		t.Errorf("notified incident %q, want the persisted one %q", notified.ID, out.IncidentID)
	}
	if notified.Assessment == nil || notified.Assessment.Reason != "distress keywords" {
		t.Error("notified incident should carry the assessment")
	}
}

func TestHandle_AnalyzePersistsAssessmentAndEmbedding(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.assessor.result = &incident.Assessment{Urgency: 0.3, Reason: "low"}

	out, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID:     "u2",
		Transcript: "just checking in",
		SensorData: map[string]float64{"heart_rate": 80},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	inc := f.incidents.last(t)
	if inc.Severity != 0.3 {
		t.Errorf("persisted severity = %v, want assessment urgency 0.3", inc.Severity)
	}
	if inc.Assessment == nil || inc.Assessment.Reason != "low" {
		t.Error("persisted incident should embed the assessment")
	}
	f.embeddings.mu.Lock()
	text, ok := f.embeddings.upserted[out.IncidentID]
	f.embeddings.mu.Unlock()
	if !ok || text != "just checking in" {
		t.Errorf("embedding upsert = (%q, %v), want transcript indexed", text, ok)
	}
}

func TestHandle_AnalyzeTranscribesAudioWhenTranscriptMissing(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.transcriber.text = "someone is following me"

	if _, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID: "u1",
		Audio:  []byte{0x01, 0x02},
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	f.assessor.mu.Lock()
	got := f.assessor.transcripts
	f.assessor.mu.Unlock()
	if len(got) != 1 || got[0] != "someone is following me" {
		t.Errorf("assessor transcripts = %v, want the transcription result", got)
	}
}

func TestHandle_AnalyzeDegradesOnTranscriptionFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.transcriber.err = errors.New("stt unavailable")

	if _, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID:     "u1",
		Audio:      []byte{0x01},
		SensorData: map[string]float64{"heart_rate": 150},
	}); err != nil {
		t.Fatalf("Handle should degrade, not fail: %v", err)
	}
	f.drain(t)

	f.assessor.mu.Lock()
	got := f.assessor.transcripts
	f.assessor.mu.Unlock()
	if len(got) != 1 || got[0] != "" {
		t.Errorf("assessor transcripts = %v, want one empty transcript", got)
	}
	if f.incidents.count() != 1 {
		t.Errorf("persisted = %d, want 1 (sensor data alone is still assessable)", f.incidents.count())
	}
}

func TestHandle_PersistFailurePropagates(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.incidents.insertErr = errors.New("pool exhausted")
	f.assessor.result = &incident.Assessment{Urgency: 0.95, Reason: "critical"}

	_, err := f.svc.Handle(context.Background(), &AnalysisSubmission{
		UserID:     "u1",
		Transcript: "please help me",
	})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	f.drain(t)

	if got := f.notifier.count(); got != 0 {
		t.Errorf("notify attempts = %d, want 0 when the write failed", got)
	}
}

func TestHandle_DeterministicTriggers(t *testing.T) {
	t.Parallel()

	lat, lon := 12.9716, 77.5946
	tests := []struct {
		name           string
		sub            Submission
		wantSeverity   float64
		wantTranscript string
	}{
		{
			name:           "panic button",
			sub:            &PanicTrigger{UserID: "u1", Latitude: &lat, Longitude: &lon},
			wantSeverity:   1.0,
			wantTranscript: "PANIC BUTTON ACTIVATED",
		},
		{
			name:           "wearable panic",
			sub:            &WearableTrigger{UserID: "u1"},
			wantSeverity:   1.0,
			wantTranscript: "WEARABLE PANIC ACTIVATED",
		},
		{
			name:           "fall detection",
			sub:            &FallTrigger{UserID: "u1"},
			wantSeverity:   0.9,
			wantTranscript: "FALL DETECTED",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newServiceFixture(t)
			out, err := f.svc.Handle(context.Background(), tt.sub)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}

			// Dispatch is synchronous for deterministic triggers; no
			// drain needed before asserting.
			if got := f.notifier.count(); got != 1 {
				t.Fatalf("notify attempts = %d, want 1 before Handle returns", got)
			}
			if f.assessor.callCount() != 0 {
				t.Error("assessor must not run for deterministic triggers")
			}
			if out.Severity != tt.wantSeverity {
				t.Errorf("severity = %v, want %v", out.Severity, tt.wantSeverity)
			}
			if out.Status != incident.StatusConfirmed {
				t.Errorf("status = %q, want %q", out.Status, incident.StatusConfirmed)
			}
			if out.Assessment != nil {
				t.Error("deterministic incidents carry no assessment")
			}
			inc := f.incidents.last(t)
			if inc.Transcript != tt.wantTranscript {
				t.Errorf("transcript = %q, want %q", inc.Transcript, tt.wantTranscript)
			}
			f.drain(t)
		})
	}
}

func TestHandle_ListenRequiresAudio(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, err := f.svc.Handle(context.Background(), &ListenClip{UserID: "u1"})
	if !errors.Is(err, ErrClientInput) {
		t.Fatalf("err = %v, want ErrClientInput", err)
	}
	f.drain(t)

	if f.incidents.count() != 0 {
		t.Error("rejected clip must not persist anything")
	}
	if f.assessor.callCount() != 0 {
		t.Error("rejected clip must not be assessed")
	}
}

func TestHandle_ListenNoMatchPersistsNothing(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.transcriber.text = "talking about the weather"

	out, err := f.svc.Handle(context.Background(), &ListenClip{UserID: "u1", Audio: []byte{0x01}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if out.Detected {
		t.Error("expected no detection")
	}
	if f.incidents.count() != 0 {
		t.Errorf("persisted = %d, want 0 for a negative clip", f.incidents.count())
	}
	if f.notifier.count() != 0 {
		t.Error("negative clip must not notify")
	}
}

func TestHandle_ListenPhraseMatchConfirmsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.transcriber.text = "I really need HELP ME now"

	out, err := f.svc.Handle(context.Background(), &ListenClip{UserID: "u1", Audio: []byte{0x01}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !out.Detected || out.Phrase != "help me" {
		t.Fatalf("detection = (%v, %q), want (true, help me)", out.Detected, out.Phrase)
	}
	if out.Severity != 0.9 {
		t.Errorf("severity = %v, want 0.9", out.Severity)
	}
	if out.Status != incident.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", out.Status)
	}
	if got := f.notifier.count(); got != 1 {
		t.Fatalf("notify attempts = %d, want 1 synchronous attempt", got)
	}
	inc := f.incidents.last(t)
	if !strings.HasPrefix(inc.Transcript, "PHRASE DETECTED (help me): ") {
		t.Errorf("transcript = %q, want phrase annotation prefix", inc.Transcript)
	}
	if f.assessor.callCount() != 0 {
		t.Error("phrase match bypasses assessment")
	}
	f.drain(t)
}

func TestHandle_SMSPhraseMatch(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	out, err := f.svc.Handle(context.Background(), &SMSTrigger{
		UserID: "u1",
		Text:   "angel code 9, corner of 5th",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if !out.Detected || out.Phrase != "angel code 9" {
		t.Fatalf("detection = (%v, %q), want (true, angel code 9)", out.Detected, out.Phrase)
	}
	if out.Severity != 1.0 {
		t.Errorf("severity = %v, want 1.0", out.Severity)
	}
	if out.Status != incident.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", out.Status)
	}
	if f.assessor.callCount() != 0 {
		t.Error("phrase-matched SMS bypasses assessment")
	}
	if got := f.notifier.count(); got != 1 {
		t.Errorf("notify attempts = %d, want 1", got)
	}
}

func TestHandle_SMSWithoutPhraseFallsThroughToAssessment(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.assessor.result = &incident.Assessment{Urgency: 0.4, Reason: "uncertain"}

	out, err := f.svc.Handle(context.Background(), &SMSTrigger{
		UserID: "u1",
		Text:   "feeling uneasy walking home",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if out.Detected {
		t.Error("no phrase should be detected")
	}
	if f.assessor.callCount() != 1 {
		t.Fatalf("assessor calls = %d, want 1 on fallthrough", f.assessor.callCount())
	}
	if out.Status != incident.StatusPending {
		t.Errorf("status = %q, want pending from the assessment path", out.Status)
	}
	if f.notifier.count() != 0 {
		t.Error("0.4 severity must not notify")
	}
}

func TestHandle_NilTranscriberDegrades(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := NewService(f.incidents, f.assessor, f.notifier, nil, nil, f.queue, log.Nop(), nil)

	out, err := svc.Handle(context.Background(), &ListenClip{UserID: "u1", Audio: []byte{0x01}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	f.drain(t)

	if out.Detected {
		t.Error("no transcript means no phrase detection")
	}
	if f.incidents.count() != 0 {
		t.Error("nothing should be persisted without a transcript")
	}
}
