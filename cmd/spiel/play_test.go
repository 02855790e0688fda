package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/spiel/internal/model"
	"github.com/pavelanni/spiel/internal/store"
)

func quizServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/init", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"session_id": "s1"})
	})
	r.Get("/next_question", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "json" {
			http.Error(w, "html only", http.StatusNotAcceptable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"next_question": map[string]any{
				"word":        "Hund",
				"translation": "dog",
				"examples":    [][]string{{"der Hund bellt", "the dog barks"}},
				"metadata":    map[string]any{"genus": "der"},
				"mode":        "word",
			},
		})
	})
	r.Get("/answer_score", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"score_string": "100", "score": 100})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestPlayRecordsAnswer(t *testing.T) {
	srv := quizServer(t)
	dbPath := filepath.Join(t.TempDir(), "spiel.db")

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("dog\nn\n"))
	cmd.SetArgs([]string{"play", "--server", srv.URL, "--db", dbPath, "--log-level", "error"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, want := range []string{
		"What does Hund mean?",
		"Your answer is correct",
		"Answer: DOG",
		"der Hund bellt / the dog barks",
		"Genus: der",
		"1 attempted",
		"Thank you!",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	ledger := model.NewScoreLedger()
	ok, err := store.GetJSON(context.Background(), s, model.KeyLedger, ledger)
	if err != nil || !ok {
		t.Fatalf("GetJSON(ledger) = %v, %v", ok, err)
	}
	if got := ledger.Scores("Hund"); len(got) != 1 || got[0] != 100 {
		t.Errorf("ledger[Hund] = %v, want [100]", got)
	}
}

func TestIsYes(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"", true},
		{"y", true},
		{"Ja", true},
		{"n", false},
		{"nein", false},
	}
	for _, tt := range tests {
		if got := isYes(tt.reply); got != tt.want {
			t.Errorf("isYes(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}
