// Package reconciler keeps the client's persisted quiz state consistent
// across page loads and decides where the user goes next.
//
// Five records live in storage independently: the score ledger, session
// stats, the resume pointer, the set of item types not yet asked in the
// current serial pass, and the order mode. Nothing makes writes across them
// atomic; a failure between two writes leaves them mutually inconsistent.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/spiel/internal/model"
	"github.com/pavelanni/spiel/internal/navigate"
	"github.com/pavelanni/spiel/internal/remote"
	"github.com/pavelanni/spiel/internal/store"
)

const (
	DefaultNextPath         = "/next_question"
	DefaultFallbackPath     = "/play"
	DefaultAutosaveInterval = 2 * time.Minute
)

var (
	// ErrStale is returned when a newer navigation attempt started while
	// this one waited on the network. Its result is discarded.
	ErrStale = errors.New("navigation superseded by a newer attempt")
	// ErrInvalidAnswer rejects answers that cannot be recorded.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Storage is the durable key-value capability.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Remote is the part of the question service the reconciler calls.
type Remote interface {
	Init(ctx context.Context, ledger string) (string, error)
	Probe(ctx context.Context, target string) error
}

// Config tunes a Reconciler. Zero values select defaults.
type Config struct {
	Types        []string
	NextPath     string
	FallbackPath string
	Now          func() time.Time
}

// State is the in-memory copy of the persisted records.
type State struct {
	Ledger    *model.ScoreLedger
	Stats     model.SessionStats
	Last      *model.ResumePointer
	Unasked   model.TypeSet // nil when the record is absent
	Order     model.OrderMode
	SessionID string
}

func (s State) clone() State {
	c := s
	c.Ledger = s.Ledger.Clone()
	if s.Stats.StartTime != nil {
		t := *s.Stats.StartTime
		c.Stats.StartTime = &t
	}
	c.Last = s.Last.Clone()
	c.Unasked = s.Unasked.Clone()
	return c
}

// Reconciler owns the client state. State mutations and their storage writes
// happen under one lock; network calls happen outside it.
type Reconciler struct {
	storage Storage
	remote  Remote
	nav     navigate.Navigator
	cfg     Config

	mu    sync.Mutex
	state State

	// seq numbers navigation attempts so late network results can be dropped.
	seq atomic.Uint64
}

// New creates a Reconciler with empty state. Call Load to read storage.
func New(s Storage, rem Remote, nav navigate.Navigator, cfg Config) *Reconciler {
	if len(cfg.Types) == 0 {
		cfg.Types = model.DefaultTypes
	}
	if cfg.NextPath == "" {
		cfg.NextPath = DefaultNextPath
	}
	if cfg.FallbackPath == "" {
		cfg.FallbackPath = DefaultFallbackPath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		storage: s,
		remote:  rem,
		nav:     nav,
		cfg:     cfg,
		state: State{
			Ledger: model.NewScoreLedger(),
			Stats:  model.NewSessionStats(cfg.Now()),
		},
	}
}

// Load replaces the in-memory state with the persisted records.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{Ledger: model.NewScoreLedger()}
	if _, err := store.GetJSON(ctx, r.storage, model.KeyLedger, st.Ledger); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	ok, err := store.GetJSON(ctx, r.storage, model.KeyStats, &st.Stats)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if !ok {
		st.Stats = model.NewSessionStats(r.cfg.Now())
	}

	var last model.ResumePointer
	ok, err = store.GetJSON(ctx, r.storage, model.KeyLast, &last)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if ok {
		st.Last = &last
	}

	if _, err := store.GetJSON(ctx, r.storage, model.KeyUnasked, &st.Unasked); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	raw, ok, err := r.storage.Get(ctx, model.KeyOrder)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if ok {
		mode, err := model.ParseOrderMode(raw)
		if err != nil {
			slog.Warn("ignoring stored order mode", "value", raw, "error", err)
		}
		st.Order = mode
	}

	if st.SessionID, _, err = r.storage.Get(ctx, model.KeySessionID); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	r.state = st
	slog.Debug("state loaded",
		"items", st.Ledger.Len(),
		"num_questions", st.Stats.NumQuestions,
		"order", st.Order,
		"unasked", []string(st.Unasked),
	)
	return nil
}

// Snapshot returns a deep copy of the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// InitializeSession starts a server session seeded with the stored score
// ledger and navigates to its first question. With serial order and a
// stored resume pointer the first question resumes where the user stopped.
// Without a stored ledger it navigates to the fallback view instead.
func (r *Reconciler) InitializeSession(ctx context.Context) error {
	return r.initialize(ctx, r.seq.Add(1))
}

func (r *Reconciler) initialize(ctx context.Context, seq uint64) error {
	params, err := r.resumeParams(ctx)
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	r.mu.Lock()
	r.state.Unasked = model.NewTypeSet(r.cfg.Types...)
	err = store.SetJSON(ctx, r.storage, model.KeyUnasked, r.state.Unasked)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	ledger, ok, err := r.storage.Get(ctx, model.KeyLedger)
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if !ok {
		slog.Info("no scores found in storage, opening fallback view", "target", r.cfg.FallbackPath)
		return r.nav.Navigate(ctx, r.cfg.FallbackPath)
	}

	id, err := r.remote.Init(ctx, ledger)
	if err != nil {
		slog.Error("session init failed", "error", err)
		return fmt.Errorf("initialize session: %w", err)
	}

	r.mu.Lock()
	if r.seq.Load() != seq {
		r.mu.Unlock()
		slog.Warn("discarding stale session init", "session_id", id)
		return ErrStale
	}
	r.state.SessionID = id
	err = r.storage.Set(ctx, model.KeySessionID, id)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	target := buildTarget(r.cfg.NextPath, append(params, param{"session_id", id}))
	slog.Info("session initialized", "session_id", id, "target", target)
	return r.nav.Navigate(ctx, target)
}

// resumeParams derives the start query from the persisted order mode and
// resume pointer.
func (r *Reconciler) resumeParams(ctx context.Context) ([]param, error) {
	order, ok, err := r.storage.Get(ctx, model.KeyOrder)
	if err != nil {
		return nil, err
	}
	if !ok || model.OrderMode(order) != model.OrderSerial {
		return nil, nil
	}
	var last model.ResumePointer
	ok, err = store.GetJSON(ctx, r.storage, model.KeyLast, &last)
	if err != nil {
		return nil, err
	}
	if !ok || last.Type == "" {
		return nil, nil
	}
	params := []param{
		{"mode", "start"},
		{"order", string(model.OrderSerial)},
		{"question_type", last.Type},
	}
	if key, ok := last.Key(last.Type); ok {
		params = append(params, param{"start", key})
	}
	return params, nil
}

// RecordAnswer appends score to itemKey's history, counts the question,
// moves the resume pointer and marks itemType as asked. All four records are
// written before it returns; a failed write is not rolled back.
func (r *Reconciler) RecordAnswer(ctx context.Context, itemType, itemKey string, score float64) error {
	if itemType == "" || itemKey == "" {
		return fmt.Errorf("%w: item type and key are required", ErrInvalidAnswer)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: score %v is not finite", ErrInvalidAnswer, score)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st := &r.state
	st.Ledger.Append(itemKey, score)
	st.Stats.NumQuestions++
	if st.Stats.StartTime == nil {
		now := r.cfg.Now()
		st.Stats.StartTime = &now
	}
	if st.Last == nil {
		st.Last = &model.ResumePointer{}
	}
	st.Last.Set(itemType, itemKey)
	removed := st.Unasked.Remove(itemType)

	if err := store.SetJSON(ctx, r.storage, model.KeyLedger, st.Ledger); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if err := store.SetJSON(ctx, r.storage, model.KeyStats, st.Stats); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if err := store.SetJSON(ctx, r.storage, model.KeyLast, st.Last); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if removed {
		if len(st.Unasked) == 0 {
			st.Unasked = nil
			if err := r.storage.Remove(ctx, model.KeyUnasked); err != nil {
				return fmt.Errorf("record answer: %w", err)
			}
		} else if err := store.SetJSON(ctx, r.storage, model.KeyUnasked, st.Unasked); err != nil {
			return fmt.Errorf("record answer: %w", err)
		}
	}

	slog.Debug("answer recorded",
		"type", itemType,
		"key", itemKey,
		"score", score,
		"num_questions", st.Stats.NumQuestions,
	)
	return nil
}

// NavigateNext persists the order mode and moves to the next question.
// Random order navigates directly. Serial order probes the target first:
// on success it navigates there, on an expired session it re-initializes,
// and on any other failure it stays put and returns the error.
func (r *Reconciler) NavigateNext(ctx context.Context, mode model.OrderMode) error {
	seq := r.seq.Add(1)

	switch mode {
	case model.OrderRandom:
		r.mu.Lock()
		r.state.Order = mode
		err := r.storage.Set(ctx, model.KeyOrder, string(mode))
		id := r.state.SessionID
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("navigate next: %w", err)
		}
		return r.nav.Navigate(ctx, buildTarget(r.cfg.NextPath, sessionParam(nil, id)))

	case model.OrderSerial:
		r.mu.Lock()
		r.state.Order = mode
		err := r.storage.Set(ctx, model.KeyOrder, string(mode))
		params := []param{{"order", string(model.OrderSerial)}}
		if t, ok := r.state.Unasked.First(); ok {
			if key, ok := r.state.Last.Key(t); ok {
				params = append(params, param{"start", key})
			}
			params = append(params, param{"question_type", t})
		}
		id := r.state.SessionID
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("navigate next: %w", err)
		}
		target := buildTarget(r.cfg.NextPath, sessionParam(params, id))
		return r.probeThenNavigate(ctx, seq, target)

	default:
		return fmt.Errorf("navigate next: unknown order mode %q", mode)
	}
}

func (r *Reconciler) probeThenNavigate(ctx context.Context, seq uint64, target string) error {
	err := r.remote.Probe(ctx, target)
	switch {
	case err == nil:
		if r.seq.Load() != seq {
			slog.Warn("discarding stale navigation", "target", target)
			return ErrStale
		}
		return r.nav.Navigate(ctx, target)
	case errors.Is(err, remote.ErrSessionExpired):
		if r.seq.Load() != seq {
			return ErrStale
		}
		slog.Info("session expired, reinitializing", "target", target)
		return r.initialize(ctx, seq)
	default:
		slog.Error("navigation probe failed", "target", target, "error", err)
		return fmt.Errorf("navigate next: %w", err)
	}
}

// Save writes the score ledger and stats.
func (r *Reconciler) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := store.SetJSON(ctx, r.storage, model.KeyLedger, r.state.Ledger); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := store.SetJSON(ctx, r.storage, model.KeyStats, r.state.Stats); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	slog.Debug("data saved", "items", r.state.Ledger.Len())
	return nil
}

// RunAutosave calls Save every interval until ctx is done. Failures are
// logged and the loop keeps going.
func (r *Reconciler) RunAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Save(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("periodic save failed", "error", err)
			}
		}
	}
}

type param struct {
	key, value string
}

func sessionParam(params []param, id string) []param {
	if id == "" {
		return params
	}
	return append(params, param{"session_id", id})
}

// buildTarget keeps parameters in the given order, unlike url.Values.Encode.
func buildTarget(path string, params []param) string {
	var sb strings.Builder
	sb.WriteString(path)
	for i, p := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}
	return sb.String()
}
