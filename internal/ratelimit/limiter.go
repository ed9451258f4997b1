// Package ratelimit bounds how often a client may hit a route using fixed
// counting windows kept in a pluggable Store
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("rate limit store unavailable")

// Window is the state of one counter after a hit
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Store keeps fixed-window counters. Hit must increment and read the counter
// atomically so concurrent hits on one key are never undercounted.
type Store interface {
	// Hit counts one request for key. The first hit opens a window of
	// length window; later hits inside it keep its ResetAt.
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Rule names a limited route and its budget
type Rule struct {
	Name    string
	Max     int64
	Window  time.Duration
	Message string
}

type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

type Limiter struct {
	rule  Rule
	store Store
}

func New(store Store, rule Rule) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("no rate limit store provided")
	}

	if rule.Name == "" {
		return nil, errors.New("rate limit rule needs a name")
	}

	if rule.Max <= 0 || rule.Window <= 0 {
		return nil, errors.New("rate limit max and window must be bigger than 0")
	}

	if rule.Message == "" {
		rule.Message = "Too many requests, please try again later"
	}

	return &Limiter{rule: rule, store: store}, nil
}

func (l *Limiter) Rule() Rule {
	return l.rule
}

// Allow counts one attempt by client against the rule. The attempt is counted
// even when it ends up rejected.
func (l *Limiter) Allow(ctx context.Context, client string) (*Result, error) {
	w, err := l.store.Hit(ctx, l.key(client), l.rule.Window)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   w.Count <= l.rule.Max,
		Remaining: max(l.rule.Max-w.Count, 0),
		ResetAt:   w.ResetAt,
	}, nil
}

func (l *Limiter) key(client string) string {
	return "rl:" + l.rule.Name + ":" + client
}
