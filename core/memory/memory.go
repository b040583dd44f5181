// Package memory persists the append-only set of facts the assistant has
// learned about its user. The store is read-shared by response pipelines and
// mutated only by the background fact-extraction task.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dkurenkov/veles/core/llms"
)

// Store owns one JSON file of user facts. Facts are keyed by exact text
// equality; appending a known text is a no-op that preserves the original
// creation date.
type Store struct {
	mu   sync.RWMutex
	path string

	facts []llms.UserFact
}

type fileFormat struct {
	UserFacts []llms.UserFact `json:"user_facts"`
}

// Open loads the store at path. A missing or malformed file self-heals to an
// empty fact set instead of failing the session.
func Open(path string) *Store {
	store := &Store{path: path}
	store.facts = loadFacts(path)
	return store
}

func loadFacts(path string) []llms.UserFact {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read fact store, starting empty", "path", path, "error", err)
		}
		return nil
	}

	var parsed fileFormat
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Warn("fact store is malformed, starting empty", "path", path, "error", err)
		return nil
	}

	return parsed.UserFacts
}

// Facts returns a point-in-time copy safe to hand to a pipeline.
func (s *Store) Facts() []llms.UserFact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]llms.UserFact, len(s.facts))
	copy(facts, s.facts)
	return facts
}

// AppendIfNew records text as a fresh fact unless an identical text is
// already stored. Reports whether the set changed.
func (s *Store) AppendIfNew(text string) bool {
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fact := range s.facts {
		if fact.Text == text {
			return false
		}
	}

	s.facts = append(s.facts, llms.NewUserFact(text))
	return true
}

// Save writes the current fact set to disk atomically enough for a single
// writer: full serialize, then one WriteFile.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(fileFormat{UserFacts: s.facts}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize fact store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write fact store: %w", err)
	}
	return nil
}
