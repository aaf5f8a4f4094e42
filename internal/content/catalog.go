package content

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"langclash/internal/models"
	"langclash/internal/validation"
)

var (
	ErrInvalidContest  = errors.New("invalid contest definition")
	ErrContestNotFound = errors.New("contest not found")
)

// LoadContest reads and validates one contest definition file
func LoadContest(path string) (models.Contest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Contest{}, fmt.Errorf("read contest %s: %w", path, err)
	}
	return ParseContest(raw)
}

// ParseContest decodes a YAML contest definition and validates it
func ParseContest(raw []byte) (models.Contest, error) {
	var contest models.Contest
	if err := yaml.Unmarshal(raw, &contest); err != nil {
		return models.Contest{}, fmt.Errorf("unmarshal contest: %w", err)
	}
	for i := range contest.Languages {
		contest.Languages[i] = strings.ToLower(strings.TrimSpace(contest.Languages[i]))
	}
	if err := Validate(contest); err != nil {
		return models.Contest{}, err
	}
	return contest, nil
}

// Validate checks the structural rules a contest must follow
func Validate(c models.Contest) error {
	if err := validation.ValidateIdentifier("id", c.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContest, err)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("%w: contest %s has no languages", ErrInvalidContest, c.ID)
	}
	seenLang := make(map[string]bool, len(c.Languages))
	for _, lang := range c.Languages {
		if err := validation.ValidateLanguage(lang); err != nil {
			return fmt.Errorf("%w: contest %s: %v", ErrInvalidContest, c.ID, err)
		}
		if seenLang[lang] {
			return fmt.Errorf("%w: contest %s lists language %s twice", ErrInvalidContest, c.ID, lang)
		}
		seenLang[lang] = true
	}

	seenLevel := make(map[int]bool, len(c.Levels))
	for _, level := range c.Levels {
		if level.Seq <= 0 {
			return fmt.Errorf("%w: level %q in %s needs a positive seq", ErrInvalidContest, level.Name, c.ID)
		}
		if seenLevel[level.Seq] {
			return fmt.Errorf("%w: duplicate level seq %d in %s", ErrInvalidContest, level.Seq, c.ID)
		}
		seenLevel[level.Seq] = true

		seenRound := make(map[int]bool, len(level.Rounds))
		for _, round := range level.Rounds {
			if round.Seq <= 0 {
				return fmt.Errorf("%w: round %q in level %d needs a positive seq", ErrInvalidContest, round.Name, level.Seq)
			}
			if seenRound[round.Seq] {
				return fmt.Errorf("%w: duplicate round seq %d in level %d", ErrInvalidContest, round.Seq, level.Seq)
			}
			seenRound[round.Seq] = true

			switch round.GameMode {
			case models.GameModeMatching, models.GameModeQuiz:
			default:
				return fmt.Errorf("%w: round %d in level %d has unknown game mode %q", ErrInvalidContest, round.Seq, level.Seq, round.GameMode)
			}
			if round.TimeLimitSeconds < 0 {
				return fmt.Errorf("%w: round %d in level %d has a negative time limit", ErrInvalidContest, round.Seq, level.Seq)
			}
		}
	}
	return nil
}

// Catalog holds the contests available to players
type Catalog struct {
	mu       sync.RWMutex
	contests map[string]models.Contest
}

// NewCatalog builds a catalog from already-validated contests
func NewCatalog(contests ...models.Contest) *Catalog {
	c := &Catalog{contests: make(map[string]models.Contest, len(contests))}
	for _, contest := range contests {
		c.contests[contest.ID] = contest
	}
	return c
}

// LoadCatalog reads every *.yaml and *.yml file in dir. Invalid files are
// skipped with a log line; a missing directory yields an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Contest directory %s not found, catalog is empty", dir)
		return NewCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contest directory: %w", err)
	}

	catalog := NewCatalog()
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		contest, err := LoadContest(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Skipping contest file %s: %v", entry.Name(), err)
			continue
		}
		if _, dup := catalog.contests[contest.ID]; dup {
			log.Printf("Skipping contest file %s: duplicate id %s", entry.Name(), contest.ID)
			continue
		}
		catalog.contests[contest.ID] = contest
	}
	log.Printf("Loaded %d contests from %s", len(catalog.contests), dir)
	return catalog, nil
}

// Get returns the contest with the given id
func (c *Catalog) Get(id string) (models.Contest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contest, ok := c.contests[id]
	if !ok {
		return models.Contest{}, fmt.Errorf("%w: %s", ErrContestNotFound, id)
	}
	return contest, nil
}

// List returns all contests ordered by id
func (c *Catalog) List() []models.Contest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Contest, 0, len(c.contests))
	for _, contest := range c.contests {
		out = append(out, contest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
