// Package navigate abstracts the side effect of moving the user to another page.
package navigate

import (
	"context"
	"sync"
)

// Navigator moves the user to target, a service-relative URL.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// Func adapts a function to Navigator.
type Func func(ctx context.Context, target string) error

func (f Func) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// Recorder remembers every target it is sent to.
type Recorder struct {
	mu      sync.Mutex
	targets []string
}

func (r *Recorder) Navigate(_ context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return nil
}

// Last returns the most recent target.
func (r *Recorder) Last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.targets) == 0 {
		return "", false
	}
	return r.targets[len(r.targets)-1], true
}

// Targets returns all targets in navigation order.
func (r *Recorder) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

// Chain navigates through each navigator in turn, stopping at the first error.
func Chain(navs ...Navigator) Navigator {
	return Func(func(ctx context.Context, target string) error {
		for _, n := range navs {
			if err := n.Navigate(ctx, target); err != nil {
				return err
			}
		}
		return nil
	})
}
