package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// BotState is the persisted bot state: chats that asked for updates and the scheduled-run switch.
type BotState struct {
	Chats     []int64   `json:"chats"`
	Paused    bool      `json:"paused"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateFile keeps BotState in a JSON file. Every mutation is written through.
type StateFile struct {
	filePath string
	chats    map[int64]struct{}
	paused   bool
	mu       sync.RWMutex
}

func NewStateFile(filePath string) *StateFile {
	return &StateFile{
		filePath: filePath,
		chats:    make(map[int64]struct{}),
	}
}

// Load reads the state file. A missing or empty file leaves the state empty.
func (s *StateFile) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var st BotState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}
	for _, id := range st.Chats {
		s.chats[id] = struct{}{}
	}
	s.paused = st.Paused
	return nil
}

// Save writes the current state.
func (s *StateFile) Save() error {
	s.mu.RLock()
	st := s.snapshot()
	s.mu.RUnlock()
	return s.write(st)
}

func (s *StateFile) snapshot() BotState {
	chats := make([]int64, 0, len(s.chats))
	for id := range s.chats {
		chats = append(chats, id)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return BotState{Chats: chats, Paused: s.paused, UpdatedAt: time.Now().UTC()}
}

func (s *StateFile) write(st BotState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// RegisterChat adds a chat and reports whether it was new.
func (s *StateFile) RegisterChat(id int64) (bool, error) {
	s.mu.Lock()
	if _, ok := s.chats[id]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.chats[id] = struct{}{}
	st := s.snapshot()
	s.mu.Unlock()
	return true, s.write(st)
}

// Chats returns registered chat ids in ascending order.
func (s *StateFile) Chats() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot().Chats
}

func (s *StateFile) SetPaused(paused bool) error {
	s.mu.Lock()
	s.paused = paused
	st := s.snapshot()
	s.mu.Unlock()
	return s.write(st)
}

func (s *StateFile) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}
