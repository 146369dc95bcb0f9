package ratelimiter

import (
	"context"
	"time"
)

type Request struct {
	Key string
}

type State uint32

const (
	Deny State = iota
	Allow
)

func (s State) String() string {
	if s == Allow {
		return "Allow"
	}
	return "Deny"
}

type Result struct {
	State            State
	RequestLimit     uint32
	RemainingTimeSec uint32
	Window           time.Duration
	RequestsInWindow int
}

// Type defines the type of rate limiter.
type Type uint32

const (
	SlidingLogLimiterType Type = iota
)

// RateLimiter defines the interface for a rate limiter.
type RateLimiter interface {
	Run(ctx context.Context, req *Request) (*Result, error)
	Type() Type
}
