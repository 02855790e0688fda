package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScoreLedger maps item keys to their score history. Histories are
// append-only and key insertion order is preserved.
type ScoreLedger struct {
	keys   []string
	scores map[string][]float64
}

// NewScoreLedger returns an empty ledger.
func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{scores: make(map[string][]float64)}
}

// Append adds score to the end of key's history, creating it if absent.
func (l *ScoreLedger) Append(key string, score float64) {
	if l.scores == nil {
		l.scores = make(map[string][]float64)
	}
	if _, ok := l.scores[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.scores[key] = append(l.scores[key], score)
}

// Scores returns a copy of key's history.
func (l *ScoreLedger) Scores(key string) []float64 {
	s, ok := l.scores[key]
	if !ok {
		return nil
	}
	return append([]float64(nil), s...)
}

// Keys returns item keys in insertion order.
func (l *ScoreLedger) Keys() []string {
	return append([]string(nil), l.keys...)
}

// Len returns the number of items.
func (l *ScoreLedger) Len() int {
	return len(l.keys)
}

// Clone returns a deep copy.
func (l *ScoreLedger) Clone() *ScoreLedger {
	c := NewScoreLedger()
	for _, k := range l.keys {
		c.keys = append(c.keys, k)
		c.scores[k] = append([]float64(nil), l.scores[k]...)
	}
	return c
}

// MarshalJSON encodes the ledger as a list of [key, scores] pairs.
func (l *ScoreLedger) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(l.keys))
	for _, k := range l.keys {
		s := l.scores[k]
		if s == nil {
			s = []float64{}
		}
		pairs = append(pairs, [2]any{k, s})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes a list of [key, scores] pairs. Repeated keys have
// their histories concatenated.
func (l *ScoreLedger) UnmarshalJSON(data []byte) error {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("decode score ledger: %w", err)
	}
	*l = ScoreLedger{scores: make(map[string][]float64, len(pairs))}
	for i, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("decode score ledger: entry %d has %d elements, want 2", i, len(p))
		}
		key, err := decodeKey(p[0])
		if err != nil {
			return fmt.Errorf("decode score ledger: entry %d key: %w", i, err)
		}
		var scores []float64
		if err := json.Unmarshal(p[1], &scores); err != nil {
			return fmt.Errorf("decode score ledger: entry %d scores: %w", i, err)
		}
		if _, ok := l.scores[key]; !ok {
			l.keys = append(l.keys, key)
			l.scores[key] = []float64{}
		}
		l.scores[key] = append(l.scores[key], scores...)
	}
	return nil
}

// decodeKey accepts a JSON string or a bare number; numbers keep their
// literal text so "42" and 42 name the same item.
func decodeKey(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("key must be a string or number, got %s", raw)
	}
	return n.String(), nil
}

// SessionStats counts answered questions.
type SessionStats struct {
	NumQuestions           int
	StartTime              *time.Time
	HistoricalNumQuestions int
}

type sessionStatsJSON struct {
	NumQuestions           int    `json:"num_questions"`
	StartTime              *int64 `json:"start_time"`
	HistoricalNumQuestions int    `json:"historical_num_questions"`
}

// NewSessionStats returns zeroed stats starting at now.
func NewSessionStats(now time.Time) SessionStats {
	start := now.Truncate(time.Millisecond)
	return SessionStats{StartTime: &start}
}

// MarshalJSON encodes the start time as epoch milliseconds.
func (s SessionStats) MarshalJSON() ([]byte, error) {
	out := sessionStatsJSON{
		NumQuestions:           s.NumQuestions,
		HistoricalNumQuestions: s.HistoricalNumQuestions,
	}
	if s.StartTime != nil {
		ms := s.StartTime.UnixMilli()
		out.StartTime = &ms
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *SessionStats) UnmarshalJSON(data []byte) error {
	var in sessionStatsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}
	if in.NumQuestions < 0 || in.HistoricalNumQuestions < 0 {
		return fmt.Errorf("decode stats: negative question count")
	}
	*s = SessionStats{
		NumQuestions:           in.NumQuestions,
		HistoricalNumQuestions: in.HistoricalNumQuestions,
	}
	if in.StartTime != nil {
		t := time.UnixMilli(*in.StartTime)
		s.StartTime = &t
	}
	return nil
}

const resumeKeyPrefix = "key_"

// ResumePointer remembers the last answered type and, per type, the last
// answered key within it.
type ResumePointer struct {
	Type string
	Keys map[string]string
}

// Set records key as the last answer of itemType and makes itemType current.
func (p *ResumePointer) Set(itemType, key string) {
	if p.Keys == nil {
		p.Keys = make(map[string]string)
	}
	p.Type = itemType
	p.Keys[itemType] = key
}

// Key returns the last answered key within itemType.
func (p *ResumePointer) Key(itemType string) (string, bool) {
	if p == nil {
		return "", false
	}
	k, ok := p.Keys[itemType]
	return k, ok
}

// Clone returns a deep copy; nil stays nil.
func (p *ResumePointer) Clone() *ResumePointer {
	if p == nil {
		return nil
	}
	c := &ResumePointer{Type: p.Type, Keys: make(map[string]string, len(p.Keys))}
	for k, v := range p.Keys {
		c.Keys[k] = v
	}
	return c
}

// MarshalJSON encodes the pointer as a flat {type, key_<type>...} object.
func (p ResumePointer) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(p.Keys)+1)
	out["type"] = p.Type
	for t, k := range p.Keys {
		out[resumeKeyPrefix+t] = k
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown fields are ignored.
func (p *ResumePointer) UnmarshalJSON(data []byte) error {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode resume pointer: %w", err)
	}
	*p = ResumePointer{Keys: make(map[string]string)}
	for field, raw := range in {
		switch {
		case field == "type":
			if err := json.Unmarshal(raw, &p.Type); err != nil {
				return fmt.Errorf("decode resume pointer: type: %w", err)
			}
		case strings.HasPrefix(field, resumeKeyPrefix):
			k, err := decodeKey(raw)
			if err != nil {
				return fmt.Errorf("decode resume pointer: %s: %w", field, err)
			}
			p.Keys[strings.TrimPrefix(field, resumeKeyPrefix)] = k
		}
	}
	return nil
}
