// Package sync reconciles the local cache with the Rapt API and folds
// realtime events into it.
package sync

import (
	"context"
	"time"

	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/store"
)

// Engine names used for metrics and logs.
const (
	EngineContacts = "contacts"
	EngineChats    = "chats"
)

// Credentials yields the current credential or an auth error.
type Credentials interface {
	Require(ctx context.Context) (*store.Credential, error)
}

// Metrics is what the engines report to.
type Metrics interface {
	realtime.Recorder
	ObserveSync(engine string, ok bool, took time.Duration)
	SetChannels(n int)
}

type nopMetrics struct{}

func (nopMetrics) IncReconnect()                           {}
func (nopMetrics) IncEvent(string)                         {}
func (nopMetrics) IncMalformed()                           {}
func (nopMetrics) ObserveSync(string, bool, time.Duration) {}
func (nopMetrics) SetChannels(int)                         {}

func orNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
