// Package classify implements process_email's "classify
// (priority/categories/spam-score)" step (spec §4.5) as a deterministic
// weighted-composite scorer, directly grounded on the teacher's
// control_plane/scheduler/types.go NodeHealth.CalculateCompositeScore
// pattern: several independent signals in [0,1], combined by fixed weights
// into one bucketed verdict.
package classify

import "strings"

// Signals are the independent, pre-normalized inputs to the composite
// score, each expected in [0,1].
type Signals struct {
	SenderReputation float64 // 1.0 = fully trusted sender
	KeywordHitRate   float64 // fraction of known spam-trigger keywords present
	StructuralRisk   float64 // heuristic over header/structure anomalies
}

// CalculateCompositeScore mirrors the teacher's weighted-sum shape but
// substitutes email signals for node-health signals, weighted 0.3 sender
// distrust (1 - reputation), 0.5 keyword hit rate, 0.2 structural risk. Output is a spam
// score in [0,1]; higher means more likely spam.
func (s Signals) CalculateCompositeScore() float64 {
	trust := 1 - s.SenderReputation
	score := 0.3*trust + 0.5*s.KeywordHitRate + 0.2*s.StructuralRisk
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Category is one of a small closed set of content categories.
type Category string

const (
	CategoryTransactional Category = "transactional"
	CategoryMarketing     Category = "marketing"
	CategorySocial        Category = "social"
	CategorySpam          Category = "spam"
	CategoryGeneral       Category = "general"
)

// Priority mirrors task.Priority's string values without importing the task
// package, keeping classify a leaf with no dependency on the scheduler.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Verdict is the result of classifying one email.
type Verdict struct {
	SpamScore  float64
	IsSpam     bool
	Categories []Category
	Priority   Priority
}

var spamKeywords = []string{
	"free money", "click here now", "act now", "wire transfer",
	"congratulations you won", "urgent action required", "viagra", "lottery winner",
}

var marketingKeywords = []string{"unsubscribe", "% off", "sale ends", "newsletter"}
var socialKeywords = []string{"commented on", "tagged you", "friend request", "new follower"}
var transactionalKeywords = []string{"invoice", "receipt", "order confirmation", "your order", "payment received"}

// Classify scores subject+body against the spam-trigger keyword list,
// combines that with a sender-reputation signal, and buckets the result.
func Classify(fromAddress, subject, body string, senderReputation float64) Verdict {
	text := strings.ToLower(subject + " " + body)

	hits := 0
	for _, kw := range spamKeywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	keywordHitRate := float64(hits) / float64(len(spamKeywords))

	structuralRisk := structuralRiskScore(fromAddress, subject)

	signals := Signals{
		SenderReputation: clamp01(senderReputation),
		KeywordHitRate:   clamp01(keywordHitRate),
		StructuralRisk:   structuralRisk,
	}
	spamScore := signals.CalculateCompositeScore()

	v := Verdict{
		SpamScore:  spamScore,
		IsSpam:     spamScore >= 0.6,
		Categories: categorize(text),
		Priority:   priorityFor(spamScore, senderReputation),
	}
	return v
}

func structuralRiskScore(fromAddress, subject string) float64 {
	risk := 0.0
	if strings.Count(fromAddress, "@") != 1 {
		risk += 0.5
	}
	if subject == strings.ToUpper(subject) && len(subject) > 8 {
		risk += 0.3
	}
	if strings.Count(subject, "!") >= 3 {
		risk += 0.2
	}
	return clamp01(risk)
}

func categorize(text string) []Category {
	var cats []Category
	if containsAny(text, transactionalKeywords) {
		cats = append(cats, CategoryTransactional)
	}
	if containsAny(text, marketingKeywords) {
		cats = append(cats, CategoryMarketing)
	}
	if containsAny(text, socialKeywords) {
		cats = append(cats, CategorySocial)
	}
	if len(cats) == 0 {
		cats = append(cats, CategoryGeneral)
	}
	return cats
}

func priorityFor(spamScore, senderReputation float64) Priority {
	switch {
	case spamScore >= 0.6:
		return PriorityLow
	case senderReputation >= 0.8:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
