package session

import (
	"math"
	"strings"

	"langclash/internal/models"
)

// Mode is the session discipline
type Mode string

const (
	ModeCompetitive Mode = "competitive"
	ModePractice    Mode = "practice"
)

// OutcomeKind is a scored gameplay result
type OutcomeKind int

const (
	MatchCorrect OutcomeKind = iota
	MatchIncorrect
	QuizCorrect
	QuizIncorrect
)

// OutcomeContext carries the details needed to weight an outcome
type OutcomeContext struct {
	Difficulty string
}

// ScoringRules are the point values used by the ledger
type ScoringRules struct {
	MatchPoints        int
	MatchPenalty       int
	QuizPoints         int
	NegativeMarking    int
	TimeBonusPerSecond int
	IdlePenalty        int
	DifficultyWeights  map[string]float64
}

// DefaultScoringRules returns the standard contest point values
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		MatchPoints:        10,
		MatchPenalty:       5,
		QuizPoints:         10,
		NegativeMarking:    2,
		TimeBonusPerSecond: 1,
		IdlePenalty:        1,
		DifficultyWeights: map[string]float64{
			"easy":   1,
			"medium": 1.5,
			"hard":   2,
		},
	}
}

// Ledger keeps the running session score and per-language snapshots.
//
// Practice mode floors the total at zero after every penalty. Competitive
// mode lets incorrect matches push the total negative between rounds and
// only floors it in Final. Quiz negative marking is floored per answer in
// both modes.
type Ledger struct {
	mode      Mode
	rules     ScoringRules
	total     int
	snapshots map[string]int
	order     []string
}

// NewLedger creates an empty ledger
func NewLedger(mode Mode, rules ScoringRules) *Ledger {
	return &Ledger{
		mode:      mode,
		rules:     rules,
		snapshots: make(map[string]int),
	}
}

// Apply records an outcome and returns the new total
func (l *Ledger) Apply(kind OutcomeKind, ctx OutcomeContext) int {
	switch kind {
	case MatchCorrect:
		l.total += l.rules.MatchPoints
	case MatchIncorrect:
		l.total -= l.rules.MatchPenalty
		if l.mode == ModePractice && l.total < 0 {
			l.total = 0
		}
	case QuizCorrect:
		weighted := float64(l.rules.QuizPoints) * l.weight(ctx.Difficulty)
		l.total += int(math.Round(weighted))
	case QuizIncorrect:
		l.total -= l.rules.NegativeMarking
		if l.total < 0 {
			l.total = 0
		}
	}
	return l.total
}

func (l *Ledger) weight(difficulty string) float64 {
	w, ok := l.rules.DifficultyWeights[strings.ToLower(strings.TrimSpace(difficulty))]
	if !ok || w <= 0 {
		return 1
	}
	return w
}

// ApplyTimeBonus adds the bonus for unused seconds and returns it. The
// total is authoritative as soon as this returns; any count-up animation
// is the caller's business.
func (l *Ledger) ApplyTimeBonus(remainingSeconds int) int {
	if remainingSeconds <= 0 || l.rules.TimeBonusPerSecond <= 0 {
		return 0
	}
	bonus := remainingSeconds * l.rules.TimeBonusPerSecond
	l.total += bonus
	return bonus
}

// Erode applies the practice idle penalty, never going below zero
func (l *Ledger) Erode() int {
	l.total -= l.rules.IdlePenalty
	if l.total < 0 {
		l.total = 0
	}
	return l.total
}

// Snapshot captures the current total for a language, replacing any
// earlier snapshot for the same language.
func (l *Ledger) Snapshot(language string) {
	if _, ok := l.snapshots[language]; !ok {
		l.order = append(l.order, language)
	}
	l.snapshots[language] = l.total
}

// Snapshots returns the latest score per language in first-capture order
func (l *Ledger) Snapshots() []models.LanguageScore {
	scores := make([]models.LanguageScore, 0, len(l.order))
	for _, lang := range l.order {
		scores = append(scores, models.LanguageScore{Language: lang, Score: floor(l.snapshots[lang])})
	}
	return scores
}

// Total returns the running total, which may be negative in competitive mode
func (l *Ledger) Total() int { return l.total }

// Final returns the total as submitted, floored at zero
func (l *Ledger) Final() int { return floor(l.total) }

// Reset clears the ledger for a full session restart
func (l *Ledger) Reset() {
	l.total = 0
	l.snapshots = make(map[string]int)
	l.order = nil
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
