package session

import (
	"strings"
	"sync"
	"time"
)

// AnswerEntry 某题的当前答案
type AnswerEntry struct {
	QuestionID  string
	Value       string
	LastSavedAt *time.Time

	version uint64
}

type storedAnswer struct {
	value   string
	version uint64
	saved   uint64
	savedAt *time.Time
}

// AnswerStore 当前作答的本地答案，只接受本测验的题目
type AnswerStore struct {
	mu      sync.RWMutex
	order   []string
	valid   map[string]struct{}
	answers map[string]*storedAnswer
	seq     uint64
}

func NewAnswerStore(questionIDs []string) *AnswerStore {
	s := &AnswerStore{
		order:   append([]string(nil), questionIDs...),
		valid:   make(map[string]struct{}, len(questionIDs)),
		answers: make(map[string]*storedAnswer, len(questionIDs)),
	}
	for _, id := range questionIDs {
		s.valid[id] = struct{}{}
	}
	return s
}

func (s *AnswerStore) Set(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.valid[questionID]; !ok {
		return ErrUnknownQuestion
	}
	a, ok := s.answers[questionID]
	if !ok {
		a = &storedAnswer{}
		s.answers[questionID] = a
	}
	if ok && a.value == value {
		return nil
	}
	s.seq++
	a.value = value
	a.version = s.seq
	return nil
}

func (s *AnswerStore) Get(questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	if !ok {
		return "", false
	}
	return a.value, true
}

// Entry 返回带版本的答案快照，用于保存后 MarkSaved
func (s *AnswerStore) Entry(questionID string) (AnswerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	if !ok {
		return AnswerEntry{}, false
	}
	return entryOf(questionID, a), true
}

// AnsweredCount 非空答案数量
func (s *AnswerStore) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.answers {
		if strings.TrimSpace(a.value) != "" {
			n++
		}
	}
	return n
}

func (s *AnswerStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.answers))
	for id, a := range s.answers {
		out[id] = a.value
	}
	return out
}

// Hydrate 用服务端已保存的答案初始化，视为已保存；不属于本测验的题目被忽略
func (s *AnswerStore) Hydrate(saved map[string]string, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, value := range saved {
		if _, ok := s.valid[id]; !ok {
			continue
		}
		s.seq++
		t := at
		s.answers[id] = &storedAnswer{value: value, version: s.seq, saved: s.seq, savedAt: &t}
		n++
	}
	return n
}

// Dirty 尚未保存到服务端的答案，按题目顺序
func (s *AnswerStore) Dirty() []AnswerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AnswerEntry
	for _, id := range s.order {
		a, ok := s.answers[id]
		if ok && a.version != a.saved {
			out = append(out, entryOf(id, a))
		}
	}
	return out
}

func (s *AnswerStore) IsDirty(questionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	return ok && a.version != a.saved
}

// MarkSaved 保存期间答案又被修改时仍保持未保存状态
func (s *AnswerStore) MarkSaved(e AnswerEntry, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[e.QuestionID]
	if !ok || e.version < a.saved {
		return
	}
	a.saved = e.version
	t := at
	a.savedAt = &t
}

func entryOf(id string, a *storedAnswer) AnswerEntry {
	return AnswerEntry{QuestionID: id, Value: a.value, LastSavedAt: a.savedAt, version: a.version}
}

func entryIDs(entries []AnswerEntry) []string {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.QuestionID
	}
	return ids
}
