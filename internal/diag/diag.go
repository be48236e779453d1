// Package diag collects the human-readable progress log of one analysis run.
package diag

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeFormat is the clock format used when exporting lines.
const TimeFormat = "15:04:05"

// Line is one diagnostics entry.
type Line struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String formats the line as "[hh:mm:ss] message".
func (l Line) String() string {
	return fmt.Sprintf("[%s] %s", l.Time.Format(TimeFormat), l.Message)
}

// Log is an append-only, ordered list of diagnostics lines. It is owned by a
// single analysis run and passed explicitly to each stage.
type Log struct {
	mu     sync.Mutex
	lines  []Line
	subs   map[int]*Subscription
	nextID int
	closed bool
	entry  *logrus.Entry
	now    func() time.Time
}

// New creates an empty log. When entry is non-nil every line is mirrored to it
// at debug level.
func New(entry *logrus.Entry) *Log {
	return &Log{
		subs:  make(map[int]*Subscription),
		entry: entry,
		now:   time.Now,
	}
}

// Printf appends a formatted line.
func (l *Log) Printf(format string, args ...any) {
	l.Append(fmt.Sprintf(format, args...))
}

// Append adds msg stamped with the current time.
func (l *Log) Append(msg string) {
	l.mu.Lock()
	line := Line{Time: l.now(), Message: msg}
	l.lines = append(l.lines, line)
	for id, sub := range l.subs {
		select {
		case sub.ch <- line:
		default:
			// full buffer: cut the subscriber off
			sub.lagged = true
			delete(l.subs, id)
			close(sub.ch)
		}
	}
	l.mu.Unlock()

	if l.entry != nil {
		l.entry.Debug(msg)
	}
}

// Lines returns a copy of all lines so far.
func (l *Log) Lines() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len returns the number of lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// String exports the log as newline separated "[hh:mm:ss] message" lines.
func (l *Log) String() string {
	lines := l.Lines()
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line.String())
	}
	return b.String()
}

// Subscription receives the lines appended after it was created.
type Subscription struct {
	// C is closed once no more lines will be sent on it.
	C <-chan Line

	ch     chan Line
	log    *Log
	id     int
	once   sync.Once
	lagged bool
}

// Lagged reports whether C was closed because its buffer filled up. Lines
// after that point were not delivered and must be read from the full log.
func (s *Subscription) Lagged() bool {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.lagged
}

// Cancel ends the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.log.mu.Lock()
		defer s.log.mu.Unlock()
		if _, ok := s.log.subs[s.id]; ok {
			delete(s.log.subs, s.id)
			close(s.ch)
		}
	})
}

// Subscribe returns the lines appended so far and a subscription to every
// later line. A subscriber whose buffer fills up is cut off; see Lagged.
func (l *Log) Subscribe(buffer int) (backlog []Line, sub *Subscription) {
	if buffer <= 0 {
		buffer = 64
	}
	c := make(chan Line, buffer)

	l.mu.Lock()
	defer l.mu.Unlock()

	backlog = make([]Line, len(l.lines))
	copy(backlog, l.lines)

	sub = &Subscription{C: c, ch: c, log: l, id: l.nextID}
	l.nextID++

	if l.closed {
		close(c)
		return backlog, sub
	}
	l.subs[sub.id] = sub
	return backlog, sub
}

// Close ends all subscriptions. Lines may still be appended afterwards but
// are no longer streamed.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, sub := range l.subs {
		delete(l.subs, id)
		close(sub.ch)
	}
}

// Closed reports whether Close has been called.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
