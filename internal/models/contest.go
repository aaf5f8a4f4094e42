package models

import "fmt"

// GameMode selects how a round is played
type GameMode string

const (
	GameModeMatching GameMode = "matching"
	GameModeQuiz     GameMode = "quiz"
)

// Contest is the declared structure of a language contest
type Contest struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Languages []string `yaml:"languages" json:"languages"`
	Levels    []Level  `yaml:"levels" json:"levels"`
}

// Level groups the rounds played at one difficulty tier
type Level struct {
	Name   string  `yaml:"name" json:"name"`
	Seq    int     `yaml:"seq" json:"seq"`
	Rounds []Round `yaml:"rounds" json:"rounds"`
}

// Round is one timed stage inside a level
type Round struct {
	Name             string   `yaml:"name" json:"name"`
	Seq              int      `yaml:"seq" json:"seq"`
	GameMode         GameMode `yaml:"game_mode" json:"gameMode"`
	TimeLimitSeconds int      `yaml:"time_limit_seconds" json:"timeLimitSeconds"`
}

// Segment is one playable (level, round, language) unit. Segments are
// values and are never mutated after the queue is built.
type Segment struct {
	LevelName        string   `json:"levelName"`
	LevelSeq         int      `json:"levelSeq"`
	RoundName        string   `json:"roundName"`
	RoundSeq         int      `json:"roundSeq"`
	GameMode         GameMode `json:"gameMode"`
	Language         string   `json:"language"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// Key returns the content lookup key for the segment
func (s Segment) Key(contestID string) SegmentKey {
	return SegmentKey{
		ContestID: contestID,
		LevelSeq:  s.LevelSeq,
		RoundSeq:  s.RoundSeq,
		Language:  s.Language,
	}
}

// String renders the segment as L<level>R<round>-<language>
func (s Segment) String() string {
	return fmt.Sprintf("L%dR%d-%s", s.LevelSeq, s.RoundSeq, s.Language)
}

// SegmentKey identifies the content of a segment on the backend
type SegmentKey struct {
	ContestID string
	LevelSeq  int
	RoundSeq  int
	Language  string
}

// Item is a playable image/translation or quiz picture
type Item struct {
	ID         string         `json:"id"`
	Hint       string         `json:"hint"`
	ImageURL   string         `json:"imageUrl"`
	Answer     string         `json:"answer,omitempty"`
	Difficulty string         `json:"difficulty,omitempty"`
	Questions  []QuizQuestion `json:"questions,omitempty"`
}

// QuizQuestion is a question/answer pair attached to a quiz picture
type QuizQuestion struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty,omitempty"`
}
