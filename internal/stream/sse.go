package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one server-sent event.
type Event struct {
	// Name is the "event:" field; empty for the default message event.
	Name string
	// Data joins the event's "data:" lines with newlines.
	Data string
	// ID is the last "id:" value seen on the stream, carried across events
	// as event-stream clients do.
	ID string
	// Retry is the reconnection delay requested by the server, or 0.
	Retry time.Duration
	// Oversized is set when a line of the event exceeded maxLineSize. The
	// event's fields are dropped and Data is empty.
	Oversized bool
}

// maxLineSize bounds a single event-stream line.
const maxLineSize = 64 * 1024

// Scanner reads server-sent events from a text/event-stream body.
type Scanner struct {
	r      *bufio.Reader
	event  Event
	lastID string
	retry  time.Duration
	err    error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, maxLineSize)}
}

// Next advances to the next event that carries data. It returns false at the
// end of the stream or on a read error; see Err.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}

	var (
		name      string
		data      []string
		hasData   bool
		oversized bool
	)
	emit := func() {
		if oversized {
			s.event = Event{ID: s.lastID, Retry: s.retry, Oversized: true}
			return
		}
		s.event = Event{Name: name, Data: strings.Join(data, "\n"), ID: s.lastID, Retry: s.retry}
	}

	for {
		line, tooLong, err := s.readLine()
		if tooLong {
			oversized = true
		}
		if err != nil && line == "" {
			s.err = err
			// A final event without its blank-line terminator is still delivered.
			if err == io.EOF && (hasData || oversized) {
				emit()
				return true
			}
			return false
		}
		if tooLong {
			continue
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData || oversized {
				emit()
				return true
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			name = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns the next line including its terminator. A line longer
// than maxLineSize is consumed up to its newline and reported as tooLong with
// an empty line.
func (s *Scanner) readLine() (line string, tooLong bool, err error) {
	frag, err := s.r.ReadSlice('\n')
	if err != bufio.ErrBufferFull {
		return string(frag), false, err
	}
	for err == bufio.ErrBufferFull {
		_, err = s.r.ReadSlice('\n')
	}
	return "", true, err
}

// Event returns the event read by the last successful Next.
func (s *Scanner) Event() Event {
	return s.event
}

// LastID returns the most recent event id, for Last-Event-ID on reconnect.
func (s *Scanner) LastID() string {
	return s.lastID
}

// Retry returns the most recent server-requested reconnection delay.
func (s *Scanner) Retry() time.Duration {
	return s.retry
}

// Err returns the read error that stopped scanning, or nil on clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
