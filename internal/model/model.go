package model

import (
	"fmt"
	"strings"
)

// Storage keys for the persisted client records.
const (
	KeyLedger    = "basicScores"
	KeyStats     = "stats"
	KeyLast      = "last"
	KeyUnasked   = "unasked"
	KeyOrder     = "order"
	KeySessionID = "session_id"
)

// Item types known to the question service.
const (
	TypeWord        = "word"
	TypePreposition = "preposition"
)

// DefaultTypes is the type universe a serial pass starts from.
var DefaultTypes = []string{TypeWord, TypePreposition}

// OrderMode selects how the next question is chosen.
type OrderMode string

const (
	// OrderSerial walks item types in turn, resuming from the last answered key.
	OrderSerial OrderMode = "serial"
	// OrderRandom leaves the choice to the server.
	OrderRandom OrderMode = "random"
)

// ParseOrderMode validates a user-supplied order mode.
func ParseOrderMode(s string) (OrderMode, error) {
	switch OrderMode(strings.ToLower(strings.TrimSpace(s))) {
	case OrderSerial:
		return OrderSerial, nil
	case OrderRandom:
		return OrderRandom, nil
	default:
		return "", fmt.Errorf("invalid order mode %q (want serial or random)", s)
	}
}

// Verdict classifies an answer score.
type Verdict string

const (
	VerdictCorrect       Verdict = "correct"
	VerdictAlmostCorrect Verdict = "almost_correct"
	VerdictNotQuite      Verdict = "not_quite"
)

// VerdictFor maps a 0-100 similarity score to a verdict.
func VerdictFor(score float64) Verdict {
	switch {
	case score >= 90:
		return VerdictCorrect
	case score >= 70:
		return VerdictAlmostCorrect
	default:
		return VerdictNotQuite
	}
}

// TypeSet is an insertion-ordered set of item types.
type TypeSet []string

// NewTypeSet returns a set holding the given types once each, in order.
func NewTypeSet(types ...string) TypeSet {
	s := make(TypeSet, 0, len(types))
	for _, t := range types {
		if !s.Contains(t) {
			s = append(s, t)
		}
	}
	return s
}

// Contains reports whether t is in the set.
func (s TypeSet) Contains(t string) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

// First returns the earliest inserted type.
func (s TypeSet) First() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}

// Remove deletes t and reports whether it was present.
func (s *TypeSet) Remove(t string) bool {
	for i, v := range *s {
		if v == t {
			*s = append((*s)[:i:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns an independent copy; nil stays nil.
func (s TypeSet) Clone() TypeSet {
	if s == nil {
		return nil
	}
	return append(TypeSet{}, s...)
}
