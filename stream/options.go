package stream

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultHistorySize is the number of consumed events a Stream keeps around
	// for diagnostics
	DefaultHistorySize = 50
	// DefaultTimeout is the wait timeout used when a call does not specify one
	DefaultTimeout = 5 * time.Second
)

// settings contains the configuration of a Stream instance
type settings struct {
	name           string
	historySize    int
	defaultTimeout time.Duration
	ll             logrus.FieldLogger
	metrics        *Metrics
}

// Opt allows clients to tweak the behavior of a Stream
type Opt func(*settings)

// WithName sets the human-readable name of a Stream, it is used on error
// messages, logs and metric labels.
func WithName(name string) Opt {
	return func(s *settings) {
		s.name = name
	}
}

// WithHistorySize sets how many already consumed events are retained for
// diagnostics (defaults to 50). Negative values are treated as zero.
func WithHistorySize(n int) Opt {
	return func(s *settings) {
		if n < 0 {
			n = 0
		}
		s.historySize = n
	}
}

// WithDefaultTimeout sets the timeout used by wait calls that receive a zero
// timeout (defaults to 5 seconds).
func WithDefaultTimeout(d time.Duration) Opt {
	return func(s *settings) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger used to report stream lifecycle and wait
// outcomes. By default nothing gets logged.
func WithLogger(ll logrus.FieldLogger) Opt {
	return func(s *settings) {
		s.ll = ll
	}
}

// WithMetrics makes the Stream report to the given Metrics collectors
func WithMetrics(m *Metrics) Opt {
	return func(s *settings) {
		s.metrics = m
	}
}

func defaultSettings() settings {
	discard := logrus.New()
	discard.Out = io.Discard
	return settings{
		name:           "stream",
		historySize:    DefaultHistorySize,
		defaultTimeout: DefaultTimeout,
		ll:             discard,
	}
}

// matcherSettings contains the configuration of a Matcher instance
type matcherSettings struct {
	fromTail bool
}

// MatcherOpt allows clients to tweak where a Matcher starts scanning
type MatcherOpt func(*matcherSettings)

// FromTail makes the Matcher ignore every event appended before its creation
func FromTail() MatcherOpt {
	return func(s *matcherSettings) {
		s.fromTail = true
	}
}
