package session

import (
	"errors"
	"sort"

	"langclash/internal/models"
)

var (
	// ErrEmptyQueue is returned when a contest expands to no segments
	ErrEmptyQueue = errors.New("contest structure produced no playable segments")
	// ErrNoLanguages is returned when a contest declares no languages
	ErrNoLanguages = errors.New("contest has no supported languages")
)

// QueueState is the pending list of segments plus the one being played
type QueueState struct {
	Pending []models.Segment
	Active  *models.Segment
}

// BuildQueue expands a contest into its ordered segments: levels by
// ascending sequence, then rounds by ascending sequence, then every
// language in the order given. All languages of a round come before the
// next round so no player skips a language.
func BuildQueue(contest models.Contest, languages []string) ([]models.Segment, error) {
	if len(languages) == 0 {
		return nil, ErrNoLanguages
	}

	levels := make([]models.Level, len(contest.Levels))
	copy(levels, contest.Levels)
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Seq < levels[j].Seq
	})

	var segments []models.Segment
	for _, level := range levels {
		rounds := make([]models.Round, len(level.Rounds))
		copy(rounds, level.Rounds)
		sort.SliceStable(rounds, func(i, j int) bool {
			return rounds[i].Seq < rounds[j].Seq
		})

		for _, round := range rounds {
			for _, lang := range languages {
				segments = append(segments, models.Segment{
					LevelName:        level.Name,
					LevelSeq:         level.Seq,
					RoundName:        round.Name,
					RoundSeq:         round.Seq,
					GameMode:         round.GameMode,
					Language:         lang,
					TimeLimitSeconds: round.TimeLimitSeconds,
				})
			}
		}
	}

	if len(segments) == 0 {
		return nil, ErrEmptyQueue
	}
	return segments, nil
}

// Advance pops the next segment off the pending list. The second return
// value is false once the queue is exhausted, which ends the session.
func Advance(state QueueState) (QueueState, bool) {
	if len(state.Pending) == 0 {
		return QueueState{}, false
	}
	next := state.Pending[0]
	rest := make([]models.Segment, len(state.Pending)-1)
	copy(rest, state.Pending[1:])
	return QueueState{Pending: rest, Active: &next}, true
}
