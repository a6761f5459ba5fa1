/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation with the model. Questions within a session are
// answered one at a time.
type Session struct {
	ID string

	mu    sync.Mutex
	chat  ChatSession
	turns int
	// lastUsed is in Unix nanoseconds. It is atomic so the store can refresh it
	// while a question holds mu.
	lastUsed atomic.Int64
}

func (s *Session) touch(t time.Time) {
	s.lastUsed.Store(t.UnixNano())
}

func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Store keeps sessions in memory, keyed by id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newChat  ChatFactory
	maxIdle  time.Duration
	now      func() time.Time
}

// NewStore returns a store creating chats with newChat. Sessions idle for longer
// than maxIdle are dropped on access; zero keeps them forever.
func NewStore(newChat ChatFactory, maxIdle time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		newChat:  newChat,
		maxIdle:  maxIdle,
		now:      time.Now,
	}
}

// Get returns the session for id, creating it if needed. An empty id starts a new
// session with a random id.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	if id == "" {
		id = uuid.NewString()
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, chat: s.newChat()}
		s.sessions[id] = sess
	}
	// Refreshed under the store lock so a concurrent Get cannot evict the session
	// before the caller uses it.
	sess.touch(s.now())
	return sess
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) evictLocked() {
	if s.maxIdle <= 0 {
		return
	}
	cutoff := s.now().Add(-s.maxIdle)
	for id, sess := range s.sessions {
		if sess.mu.TryLock() {
			idle := sess.lastUsed.Load() < cutoff.UnixNano()
			sess.mu.Unlock()
			if idle {
				delete(s.sessions, id)
			}
		}
	}
}
