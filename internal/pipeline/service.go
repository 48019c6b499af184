// Package pipeline is the distress-event orchestrator: it classifies each
// submission by trigger type, drives transcription and urgency assessment
// where needed, persists the incident, and decides how notification dispatch
// happens (synchronous for unambiguous triggers, queued for severity-gated
// ones).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/guardian/internal/incident"
)

// notifyThreshold gates async notification for assessed submissions. The
// comparison is strictly greater-than: a severity of exactly 0.70 does not
// notify.
const notifyThreshold = 0.7

// ErrClientInput marks a rejected submission (missing required payload).
// Handlers map it to a 4xx response. No side effects precede it.
var ErrClientInput = errors.New("invalid submission")

// Assessor scores free-form submissions. Must never fail outward.
type Assessor interface {
	Assess(ctx context.Context, userID, transcript string, audioEvents []string, sensorData map[string]float64) *incident.Assessment
}

// Notifier fans an incident out to the user's emergency contacts.
type Notifier interface {
	Notify(ctx context.Context, inc *incident.Incident) bool
}

// Transcriber converts raw audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// EmbeddingIndex accepts incident transcripts for similarity indexing.
// Purely advisory; failures never affect pipeline outcomes.
type EmbeddingIndex interface {
	Upsert(ctx context.Context, incidentID, text string) error
}

// Service is the distress pipeline.
type Service struct {
	incidents   incident.Store
	assessor    Assessor
	notifier    Notifier
	transcriber Transcriber    // nil means transcription unavailable
	embeddings  EmbeddingIndex // nil disables similarity indexing
	queue       *DispatchQueue
	logger      log.Logger
	metrics     *Metrics // nil-safe
}

// NewService creates the pipeline service. Transcriber, embeddings, and
// metrics may be nil.
func NewService(incidents incident.Store, assessor Assessor, notifier Notifier, transcriber Transcriber, embeddings EmbeddingIndex, queue *DispatchQueue, logger log.Logger, metrics *Metrics) *Service {
	if incidents == nil {
		panic(xerrors.New("incident store is required"))
	}
	if assessor == nil {
		panic(xerrors.New("assessor is required"))
	}
	if notifier == nil {
		panic(xerrors.New("notifier is required"))
	}
	if queue == nil {
		panic(xerrors.New("dispatch queue is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		incidents:   incidents,
		assessor:    assessor,
		notifier:    notifier,
		transcriber: transcriber,
		embeddings:  embeddings,
		queue:       queue,
		logger:      logger,
		metrics:     metrics,
	}
}

// Handle processes one submission through its trigger-specific path.
func (s *Service) Handle(ctx context.Context, sub Submission) (*Outcome, error) {
	start := time.Now()
	out, err := s.dispatch(ctx, sub)
	s.observe(sub.trigger(), time.Since(start), err)
	return out, err
}

func (s *Service) dispatch(ctx context.Context, sub Submission) (*Outcome, error) {
	switch v := sub.(type) {
	case *AnalysisSubmission:
		return s.analyze(ctx, v)
	case *PanicTrigger:
		return s.deterministic(ctx, v.UserID, panicTranscript, panicSeverity, v.Latitude, v.Longitude)
	case *WearableTrigger:
		return s.deterministic(ctx, v.UserID, wearableTranscript, wearableSeverity, v.Latitude, v.Longitude)
	case *FallTrigger:
		return s.deterministic(ctx, v.UserID, fallTranscript, fallSeverity, v.Latitude, v.Longitude)
	case *ListenClip:
		return s.listen(ctx, v)
	case *SMSTrigger:
		return s.sms(ctx, v)
	default:
		return nil, xerrors.New(fmt.Sprintf("unhandled submission type %T", sub))
	}
}

// analyze is the free-form path: transcribe if needed, assess, persist
// pending, and queue notification when severity clears the threshold.
func (s *Service) analyze(ctx context.Context, sub *AnalysisSubmission) (*Outcome, error) {
	transcript := sub.Transcript
	if transcript == "" && len(sub.Audio) > 0 {
		transcript = s.transcribe(ctx, sub.UserID, sub.Audio)
	}

	res := s.assessor.Assess(ctx, sub.UserID, transcript, sub.AudioEvents, sub.SensorData)

	eventAt := sub.EventAt
	if eventAt.IsZero() {
		eventAt = time.Now().UTC()
	}

	inc := &incident.Incident{
		UserID:      sub.UserID,
		EventAt:     eventAt,
		Transcript:  transcript,
		Latitude:    sub.Latitude,
		Longitude:   sub.Longitude,
		AudioEvents: sub.AudioEvents,
		SensorData:  sub.SensorData,
		Assessment:  res,
		Severity:    res.Urgency,
		Status:      incident.StatusPending,
	}
	id, err := s.incidents.Insert(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	s.enqueueEmbedding(ctx, id, transcript)

	if inc.Severity > notifyThreshold {
		s.enqueueNotify(ctx, inc)
	}

	return &Outcome{
		IncidentID: id,
		Severity:   inc.Severity,
		Status:     inc.Status,
		Assessment: res,
	}, nil
}

// deterministic handles unambiguous triggers: fixed severity, status
// confirmed, assessor bypassed, and a synchronous dispatch attempt so the
// notification cannot be lost to a crashed background task.
func (s *Service) deterministic(ctx context.Context, userID, transcript string, severity float64, lat, lon *float64) (*Outcome, error) {
	inc := &incident.Incident{
		UserID:     userID,
		EventAt:    time.Now().UTC(),
		Transcript: transcript,
		Latitude:   lat,
		Longitude:  lon,
		Severity:   severity,
		Status:     incident.StatusConfirmed,
	}
	id, err := s.incidents.Insert(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	s.enqueueEmbedding(ctx, id, transcript)
	s.notifyNow(ctx, inc)

	return &Outcome{IncidentID: id, Severity: severity, Status: inc.Status}, nil
}

// listen scans one rolling audio clip for a distress phrase. Negative clips
// are frequent and persist nothing.
func (s *Service) listen(ctx context.Context, clip *ListenClip) (*Outcome, error) {
	if len(clip.Audio) == 0 {
		return nil, fmt.Errorf("%w: listen clip requires an audio payload", ErrClientInput)
	}

	transcript := s.transcribe(ctx, clip.UserID, clip.Audio)

	phrase, ok := scanForPhrase(transcript)
	if !ok {
		return &Outcome{Detected: false}, nil
	}

	inc := &incident.Incident{
		UserID:     clip.UserID,
		EventAt:    time.Now().UTC(),
		Transcript: fmt.Sprintf("PHRASE DETECTED (%s): %s", phrase, transcript),
		Latitude:   clip.Latitude,
		Longitude:  clip.Longitude,
		Severity:   listenSeverity,
		Status:     incident.StatusConfirmed,
	}
	id, err := s.incidents.Insert(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	s.enqueueEmbedding(ctx, id, inc.Transcript)
	s.notifyNow(ctx, inc)

	return &Outcome{
		IncidentID: id,
		Severity:   inc.Severity,
		Status:     inc.Status,
		Detected:   true,
		Phrase:     phrase,
	}, nil
}

// sms tries the cheap deterministic phrase path first and falls through to
// the full assessment path when no phrase matches.
func (s *Service) sms(ctx context.Context, trig *SMSTrigger) (*Outcome, error) {
	phrase, ok := scanForPhrase(trig.Text)
	if !ok {
		return s.analyze(ctx, &AnalysisSubmission{
			UserID:     trig.UserID,
			Kind:       SignalText,
			Transcript: trig.Text,
			Latitude:   trig.Latitude,
			Longitude:  trig.Longitude,
		})
	}

	inc := &incident.Incident{
		UserID:     trig.UserID,
		EventAt:    time.Now().UTC(),
		Transcript: trig.Text,
		Latitude:   trig.Latitude,
		Longitude:  trig.Longitude,
		Severity:   smsSeverity,
		Status:     incident.StatusConfirmed,
	}
	id, err := s.incidents.Insert(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	s.enqueueEmbedding(ctx, id, trig.Text)
	s.enqueueNotify(ctx, inc)

	return &Outcome{
		IncidentID: id,
		Severity:   inc.Severity,
		Status:     inc.Status,
		Detected:   true,
		Phrase:     phrase,
	}, nil
}

// transcribe runs the transcription collaborator. Failure degrades to an
// empty transcript; it never aborts the pipeline.
func (s *Service) transcribe(ctx context.Context, userID string, audio []byte) string {
	if s.transcriber == nil {
		s.logger.Warn(ctx, "no transcriber configured, proceeding without transcript", "user_id", userID)
		return ""
	}
	text, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		s.logger.Warn(ctx, "transcription failed, proceeding without transcript",
			"user_id", userID, "error", err)
		return ""
	}
	return text
}

// notifyNow dispatches synchronously; the caller waits for the attempt.
func (s *Service) notifyNow(ctx context.Context, inc *incident.Incident) {
	attempted := s.notifier.Notify(ctx, inc)
	s.observeNotify(attempted)
}

// enqueueNotify queues a background dispatch. The incident is already
// durable by the time the task exists, so the write happens-before the
// notification attempt.
func (s *Service) enqueueNotify(ctx context.Context, inc *incident.Incident) {
	cp := *inc
	s.queue.Enqueue(ctx, "notify", func(tctx context.Context) {
		attempted := s.notifier.Notify(tctx, &cp)
		s.observeNotify(attempted)
	})
}

// enqueueEmbedding queues a fire-and-forget similarity-index upsert.
func (s *Service) enqueueEmbedding(ctx context.Context, incidentID, text string) {
	if s.embeddings == nil || text == "" {
		return
	}
	s.queue.Enqueue(ctx, "embedding", func(tctx context.Context) {
		if err := s.embeddings.Upsert(tctx, incidentID, text); err != nil {
			s.logger.Warn(tctx, "embedding upsert failed", "incident_id", incidentID, "error", err)
		}
	})
}

func (s *Service) observe(trigger string, dur time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrClientInput):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	s.metrics.SubmissionsTotal.WithLabelValues(trigger, result).Inc()
	s.metrics.HandleDuration.WithLabelValues(trigger).Observe(dur.Seconds())
}

func (s *Service) observeNotify(attempted bool) {
	if s.metrics == nil {
		return
	}
	outcome := "attempted"
	if !attempted {
		outcome = "no_contacts"
	}
	s.metrics.NotifyRunsTotal.WithLabelValues(outcome).Inc()
}
