package context

import "sync"

// MemoryStore is a process-wide map from user id to transcript guarded by a
// single mutex. Entries are never evicted, so memory grows with the number of
// users and the length of their conversations until the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	contexts map[int64]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contexts: make(map[int64]string)}
}

// Get returns the transcript for userID, creating an empty one if needed.
func (s *MemoryStore) Get(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript, ok := s.contexts[userID]
	if !ok {
		s.contexts[userID] = ""
	}
	return transcript
}

// Append adds one complete block to the user's transcript. The role is not
// validated; only user and assistant blocks survive ParseTranscript.
func (s *MemoryStore) Append(userID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[userID] += FormatBlock(role, content)
}

// Clear resets an existing transcript to empty and reports whether it existed.
// Unknown users are left untracked.
func (s *MemoryStore) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[userID]; !ok {
		return false
	}
	s.contexts[userID] = ""
	return true
}

// Len returns the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
