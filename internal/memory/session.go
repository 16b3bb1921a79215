// Package memory provides the agent's two memory layers: a per-project
// in-RAM session store (scratch state for the planning loop) and a durable
// document store with full-text and semantic search.
package memory

import (
	"sync"
	"time"
)

// SessionDoc is a single session-memory entry. Writes are last-write-wins
// per (project, key); there is no versioning.
type SessionDoc struct {
	Key       string
	Content   string
	UpdatedAt time.Time
}

// SessionStore holds temporary per-project working state. It is cleared
// wholesale when a project's session ends; nothing here survives a restart.
type SessionStore struct {
	mu       sync.RWMutex
	projects map[string]map[string]SessionDoc
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{projects: make(map[string]map[string]SessionDoc)}
}

// Set stores content under (projectID, key), replacing any prior value.
func (s *SessionStore) Set(projectID, key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		s.projects[projectID] = make(map[string]SessionDoc)
	}
	s.projects[projectID][key] = SessionDoc{
		Key:       key,
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
}

// Get returns the entry for (projectID, key).
func (s *SessionStore) Get(projectID, key string) (SessionDoc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.projects[projectID][key]
	return doc, ok
}

// All returns every session entry for a project.
func (s *SessionStore) All(projectID string) []SessionDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]SessionDoc, 0, len(s.projects[projectID]))
	for _, d := range s.projects[projectID] {
		docs = append(docs, d)
	}
	return docs
}

// Clear removes all session entries for a project.
func (s *SessionStore) Clear(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, projectID)
}
