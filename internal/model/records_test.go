package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestScoreLedgerAppend(t *testing.T) {
	l := NewScoreLedger()
	l.Append("7", 0.5)
	l.Append("hund", 80)
	l.Append("7", 1)
	l.Append("7", 0)

	if got := l.Scores("7"); !reflect.DeepEqual(got, []float64{0.5, 1, 0}) {
		t.Errorf("Scores(7) = %v, want [0.5 1 0]", got)
	}
	if got := l.Keys(); !reflect.DeepEqual(got, []string{"7", "hund"}) {
		t.Errorf("Keys() = %v, want [7 hund]", got)
	}
	if l.Scores("missing") != nil {
		t.Error("expected nil scores for missing key")
	}

	// Returned slices must not alias the ledger.
	s := l.Scores("7")
	s[0] = 99
	if l.Scores("7")[0] != 0.5 {
		t.Error("Scores returned an aliased slice")
	}
}

func TestScoreLedgerZeroValue(t *testing.T) {
	var l ScoreLedger
	l.Append("a", 1)
	if l.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", l.Len())
	}
}

func TestScoreLedgerJSON(t *testing.T) {
	l := NewScoreLedger()
	l.Append("7", 0.5)
	l.Append("auf", 100)
	l.Append("7", 70)

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `[["7",[0.5,70]],["auf",[100]]]`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back ScoreLedger
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Keys(), l.Keys()) {
		t.Errorf("keys = %v, want %v", back.Keys(), l.Keys())
	}
	for _, k := range l.Keys() {
		if !reflect.DeepEqual(back.Scores(k), l.Scores(k)) {
			t.Errorf("Scores(%s) = %v, want %v", k, back.Scores(k), l.Scores(k))
		}
	}

	empty, err := json.Marshal(NewScoreLedger())
	if err != nil {
		t.Fatalf("Marshal empty: %v", err)
	}
	if string(empty) != "[]" {
		t.Errorf("empty ledger = %s, want []", empty)
	}
}

func TestScoreLedgerUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		keys    []string
		scores  map[string][]float64
		wantErr bool
	}{
		{"empty", `[]`, nil, map[string][]float64{}, false},
		{"numeric key", `[[42,[1,2]]]`, []string{"42"}, map[string][]float64{"42": {1, 2}}, false},
		{"repeated key", `[["a",[1]],["b",[5]],["a",[2]]]`, []string{"a", "b"},
			map[string][]float64{"a": {1, 2}, "b": {5}}, false},
		{"not a list", `{"a":[1]}`, nil, nil, true},
		{"short pair", `[["a"]]`, nil, nil, true},
		{"bad scores", `[["a","x"]]`, nil, nil, true},
		{"bad key", `[[true,[1]]]`, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l ScoreLedger
			err := json.Unmarshal([]byte(tt.input), &l)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(l.Keys(), tt.keys) {
				t.Errorf("keys = %v, want %v", l.Keys(), tt.keys)
			}
			for k, want := range tt.scores {
				if got := l.Scores(k); !reflect.DeepEqual(got, want) {
					t.Errorf("Scores(%s) = %v, want %v", k, got, want)
				}
			}
		})
	}
}

func TestSessionStatsJSON(t *testing.T) {
	start := time.UnixMilli(1700000000123)
	s := SessionStats{NumQuestions: 3, StartTime: &start, HistoricalNumQuestions: 10}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"num_questions":3,"start_time":1700000000123,"historical_num_questions":10}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back SessionStats
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.NumQuestions != 3 || back.HistoricalNumQuestions != 10 {
		t.Errorf("counts = %d/%d, want 3/10", back.NumQuestions, back.HistoricalNumQuestions)
	}
	if back.StartTime == nil || !back.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", back.StartTime, start)
	}

	// Null start time and a missing historical count both decode.
	var partial SessionStats
	if err := json.Unmarshal([]byte(`{"num_questions":2,"start_time":null}`), &partial); err != nil {
		t.Fatalf("Unmarshal partial: %v", err)
	}
	if partial.StartTime != nil || partial.NumQuestions != 2 || partial.HistoricalNumQuestions != 0 {
		t.Errorf("unexpected partial stats: %+v", partial)
	}

	if err := json.Unmarshal([]byte(`{"num_questions":-1}`), &partial); err == nil {
		t.Error("expected error for negative count")
	}
}

func TestNewSessionStatsTruncatesToMillis(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	s := NewSessionStats(now)
	if s.StartTime.Nanosecond() != 123000000 {
		t.Errorf("start nanos = %d, want 123000000", s.StartTime.Nanosecond())
	}
}

func TestResumePointerJSON(t *testing.T) {
	var p ResumePointer
	p.Set(TypeWord, "42")
	p.Set(TypePreposition, "auf")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"key_preposition":"auf","key_word":"42","type":"preposition"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back ResumePointer
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, p) {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}

	var numeric ResumePointer
	if err := json.Unmarshal([]byte(`{"type":"word","key_word":42,"extra":true}`), &numeric); err != nil {
		t.Fatalf("Unmarshal numeric: %v", err)
	}
	if k, ok := numeric.Key(TypeWord); !ok || k != "42" {
		t.Errorf("Key(word) = %q, %v; want 42, true", k, ok)
	}
	if _, ok := numeric.Key(TypePreposition); ok {
		t.Error("unexpected preposition key")
	}
}

func TestResumePointerNilKey(t *testing.T) {
	var p *ResumePointer
	if _, ok := p.Key(TypeWord); ok {
		t.Error("nil pointer should have no keys")
	}
	if p.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestTypeSet(t *testing.T) {
	s := NewTypeSet("word", "preposition", "word")
	if !reflect.DeepEqual(s, TypeSet{"word", "preposition"}) {
		t.Fatalf("NewTypeSet = %v", s)
	}

	c := s.Clone()
	if !s.Remove("word") {
		t.Fatal("Remove(word) = false")
	}
	if s.Remove("word") {
		t.Error("second Remove(word) = true")
	}
	if first, ok := s.First(); !ok || first != "preposition" {
		t.Errorf("First() = %q, %v", first, ok)
	}
	if !reflect.DeepEqual(c, TypeSet{"word", "preposition"}) {
		t.Errorf("clone mutated: %v", c)
	}

	s.Remove("preposition")
	if _, ok := s.First(); ok {
		t.Error("expected empty set")
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `["word","preposition"]` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestParseOrderMode(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderMode
		wantErr bool
	}{
		{"serial", OrderSerial, false},
		{" Random ", OrderRandom, false},
		{"", "", true},
		{"shuffle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrderMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerdictFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Verdict
	}{
		{100, VerdictCorrect},
		{90, VerdictCorrect},
		{89.9, VerdictAlmostCorrect},
		{70, VerdictAlmostCorrect},
		{69, VerdictNotQuite},
		{0, VerdictNotQuite},
	}
	for _, tt := range tests {
		if got := VerdictFor(tt.score); got != tt.want {
			t.Errorf("VerdictFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
