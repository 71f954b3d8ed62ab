// Package history keeps the conversation log for the current run: one
// entry per turn, tagged with the tool it belongs to. The forwarding engine
// reads it to find the newest assistant reply and the query that produced
// it.
package history

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Entry struct {
	Tool    string
	Role    Role
	Content string
	At      time.Time
}

// Sink receives every appended entry for persistence. Appends must not
// fail the in-memory log; sink errors are the sink's problem.
type Sink interface {
	AppendTurn(Entry)
}

// Log is an append-only in-memory conversation log.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	sink    Sink
}

// New creates a log. sink may be nil.
func New(sink Sink) *Log {
	return &Log{sink: sink}
}

func (l *Log) Append(tool string, role Role, content string) {
	e := Entry{Tool: tool, Role: role, Content: content, At: time.Now()}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	sink := l.sink
	l.mu.Unlock()
	if sink != nil {
		sink.AppendTurn(e)
	}
}

// Seed preloads persisted entries without notifying the sink. Call before
// the first Append.
func (l *Log) Seed(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(entries, l.entries...)
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastAssistant returns the newest assistant entry.
func (l *Log) LastAssistant() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == RoleAssistant {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}

// LastExchange returns the newest assistant entry together with the user
// query that preceded it on the same tool. originQuery is "" when the reply
// has no recorded query, which happens for transcripts captured during an
// interactive attachment.
func (l *Log) LastExchange() (originQuery string, reply Entry, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := -1
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", Entry{}, false
	}
	reply = l.entries[idx]
	for i := idx - 1; i >= 0; i-- {
		if l.entries[i].Role == RoleUser && l.entries[i].Tool == reply.Tool {
			originQuery = l.entries[i].Content
			break
		}
	}
	return originQuery, reply, true
}

// Clear drops all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
