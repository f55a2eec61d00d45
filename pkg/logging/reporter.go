package logging

import (
	"sync"

	"github.com/rs/zerolog"
)

// Severity classifies a progress message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarn
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Reporter receives progress messages from a download.
type Reporter interface {
	Report(msg string, severity Severity)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(msg string, severity Severity)

// Report calls f.
func (f ReporterFunc) Report(msg string, severity Severity) { f(msg, severity) }

// ZerologReporter writes progress messages to a zerolog logger.
type ZerologReporter struct {
	logger zerolog.Logger
}

// NewZerologReporter creates a reporter on logger.
func NewZerologReporter(logger zerolog.Logger) *ZerologReporter {
	return &ZerologReporter{logger: logger}
}

// Report logs msg at the level matching severity.
func (r *ZerologReporter) Report(msg string, severity Severity) {
	var event *zerolog.Event
	switch severity {
	case SeverityWarn:
		event = r.logger.Warn()
	case SeverityError:
		event = r.logger.Error()
	default:
		event = r.logger.Info()
	}
	event.Str("severity", severity.String()).Msg(msg)
}

// Message is one recorded progress message.
type Message struct {
	Text     string
	Severity Severity
}

// Recorder keeps every reported message. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Report records msg.
func (r *Recorder) Report(msg string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: msg, Severity: severity})
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Multi fans a message out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return ReporterFunc(func(msg string, severity Severity) {
		for _, r := range reporters {
			if r != nil {
				r.Report(msg, severity)
			}
		}
	})
}
