// Package assess turns a distress submission into an urgency score. It
// delegates to an external reasoning service when one is configured and
// degrades to a deterministic rule-based score otherwise. Assess never fails
// outward; every internal error lands on a documented fallback.
package assess

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/guardian/internal/incident"
	"github.com/linnemanlabs/guardian/internal/profile"
)

// Assessment sources, reported through the OnAssess hook.
const (
	SourceReasoner  = "reasoner"
	SourceHeuristic = "heuristic"
	SourceRules     = "rules"
)

// ruleKeywords trip the +0.7 rule-based score bump. Matching is
// case-insensitive substring containment.
var ruleKeywords = []string{"help", "emergency", "attack", "follow", "please help"}

const (
	keywordScore   = 0.7
	audioTagScore  = 0.2
	heartRateScore = 0.1
	heartRateLimit = 120

	// notifyActionThreshold gates the rule-based recommended action.
	notifyActionThreshold = 0.6

	// historyContextLimit bounds the prior-incident lookup for prompt context.
	historyContextLimit = 5
)

// Reasoner is the external reasoning collaborator. No response structure is
// guaranteed; the assessor parses defensively.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Assessor scores distress submissions.
type Assessor struct {
	profiles  profile.Store
	incidents incident.Store
	reasoner  Reasoner // nil means unconfigured: rule-based only
	logger    log.Logger

	// OnAssess, when set, is called once per assessment with the source
	// that produced the result. Wired to metrics by main.
	OnAssess func(source string)
}

// New creates an assessor. A nil reasoner skips the external service entirely.
func New(profiles profile.Store, incidents incident.Store, reasoner Reasoner, logger log.Logger) *Assessor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Assessor{
		profiles:  profiles,
		incidents: incidents,
		reasoner:  reasoner,
		logger:    logger,
	}
}

// Assess scores one submission. It always returns a result with urgency in
// [0, 1]; reasoning-service failures degrade to the rule-based path.
func (a *Assessor) Assess(ctx context.Context, userID, transcript string, audioEvents []string, sensorData map[string]float64) *incident.Assessment {
	if a.reasoner == nil {
		return a.finish(SourceRules, a.ruleBased(transcript, audioEvents, sensorData))
	}

	prompt := a.buildPrompt(ctx, userID, transcript, audioEvents, sensorData)

	raw, err := a.reasoner.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn(ctx, "reasoning service unavailable, using rule-based score",
			"user_id", userID, "error", err)
		return a.finish(SourceRules, a.ruleBased(transcript, audioEvents, sensorData))
	}

	res, err := parseAssessment(raw)
	if err != nil {
		a.logger.Warn(ctx, "unparseable reasoning response, using heuristic score",
			"user_id", userID, "error", err)
		return a.finish(SourceHeuristic, heuristic(transcript, audioEvents, raw))
	}

	res.Urgency = clamp01(res.Urgency)
	return a.finish(SourceReasoner, res)
}

func (a *Assessor) finish(source string, res *incident.Assessment) *incident.Assessment {
	if a.OnAssess != nil {
		a.OnAssess(source)
	}
	return res
}

// ruleBased is the deterministic fallback score.
func (a *Assessor) ruleBased(transcript string, audioEvents []string, sensorData map[string]float64) *incident.Assessment {
	score := 0.0
	text := strings.ToLower(transcript)
	for _, kw := range ruleKeywords {
		if strings.Contains(text, kw) {
			score += keywordScore
			break
		}
	}
	if len(audioEvents) > 0 {
		score += audioTagScore
	}
	if hr, ok := sensorData["heart_rate"]; ok && hr > heartRateLimit {
		score += heartRateScore
	}
	score = math.Round(math.Min(1.0, score)*100) / 100

	actions := []string{"ask_clarify"}
	if score > notifyActionThreshold {
		actions = []string{"notify_contacts"}
	}
	return &incident.Assessment{
		Urgency:            score,
		Reason:             "rule-based detection",
		RecommendedActions: actions,
	}
}

// heuristic scores a submission when the reasoning service answered but its
// response could not be parsed. The reason records the raw response, bounded.
func heuristic(transcript string, audioEvents []string, raw string) *incident.Assessment {
	urgency := 0.2
	if strings.Contains(strings.ToLower(transcript), "help") || len(audioEvents) > 0 {
		urgency = 0.9
	}
	return &incident.Assessment{
		Urgency:            urgency,
		Reason:             "unparseable reasoning response: " + truncate(raw, maxReasonLen),
		RecommendedActions: []string{"notify_contacts"},
	}
}

func (a *Assessor) buildPrompt(ctx context.Context, userID, transcript string, audioEvents []string, sensorData map[string]float64) string {
	name, age, history := "N/A", "N/A", "None provided"

	// Absent profile means empty context, not an error.
	p, ok, err := a.profiles.Get(ctx, userID)
	if err != nil {
		a.logger.Warn(ctx, "profile lookup failed, assessing without context", "user_id", userID, "error", err)
	} else if ok {
		if p.Name != "" {
			name = p.Name
		}
		if p.Age > 0 {
			age = fmt.Sprintf("%d", p.Age)
		}
		if p.MedicalHistory != "" {
			history = p.MedicalHistory
		}
	}

	priorIncidents := 0
	if prior, err := a.incidents.ByUser(ctx, userID, historyContextLimit); err == nil {
		priorIncidents = len(prior)
	}

	return fmt.Sprintf(`You are a world-class emergency response dispatcher. Assess the urgency of a situation based on the provided data.
Return a JSON object with 'urgency' (float from 0.0 to 1.0), 'reason' (a short, clear explanation), and 'recommended_actions' (a list of strings).

User Profile:
- Name: %s
- Age: %s
- Medical History: %s
- Prior incidents on record: %d

Incident Data:
- User transcript: %q
- Detected audio events: %v
- Sensor data: %v

Analyze all the information and provide your assessment. A transcript mentioning "chest pain" is significantly more urgent if the user has a history of heart conditions.`,
		name, age, history, priorIncidents, transcript, audioEvents, sensorData)
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
