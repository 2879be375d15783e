package history

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// fish_history grammar, as fish writes it:
//
//	- cmd: git status
//	  when: 1712345678
//	  paths:
//	    - /home/tyler/src
//
// A `- cmd: ` line opens an entry and carries the raw command text (fish
// escapes embedded newlines itself, so the text is always one line). The
// `  when: ` line carries the Unix timestamp. Every other line up to the next
// `- cmd: ` line belongs to the entry and is preserved verbatim as its Extra
// block — the parser does not interpret paths: or any field it does not own,
// so unrecognized structure survives a parse/render round trip unmodified.
const (
	cmdPrefix  = "- cmd: "
	whenPrefix = "  when: "

	// maxLineBytes bounds a single history line. fish commands are at most a
	// few megabytes even for pasted scripts; 16 MiB leaves a wide margin.
	maxLineBytes = 16 << 20
)

// Scanner iterates over the entries in fish_history bytes, one at a time.
// Scanning is lazy and read-only: constructing a new Scanner over the same
// bytes yields the same sequence again.
//
// Usage mirrors bufio.Scanner:
//
//	sc := history.NewScanner(data)
//	for sc.Next() {
//		use(sc.Entry())
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	lines    *bufio.Scanner
	lookback string
	unread   bool
	cur      Entry
	err      error
	done     bool
}

// NewScanner returns a Scanner over the raw bytes of a fish_history file.
func NewScanner(data []byte) *Scanner {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Scanner{lines: sc}
}

// Next advances to the next entry. It returns false when the input is
// exhausted or a parse error occurred; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.err != nil || s.done {
		return false
	}

	// Seek the opening cmd line. Lines before the first entry have no entry
	// to belong to and are skipped.
	var opening string
	for {
		line, ok := s.nextLine()
		if !ok {
			s.finish()
			return false
		}
		if strings.HasPrefix(line, cmdPrefix) {
			opening = line
			break
		}
	}

	entry := Entry{Cmd: strings.TrimPrefix(opening, cmdPrefix)}
	haveWhen := false
	var extra []string

	for {
		line, ok := s.nextLine()
		if !ok {
			if err := s.lines.Err(); err != nil {
				s.err = fmt.Errorf("scan history: %w", err)
				return false
			}
			break
		}
		if strings.HasPrefix(line, cmdPrefix) {
			s.unreadLine(line)
			break
		}
		if !haveWhen && strings.HasPrefix(line, whenPrefix) {
			when, err := strconv.ParseInt(strings.TrimPrefix(line, whenPrefix), 10, 64)
			if err != nil {
				s.err = fmt.Errorf("entry %q: parse when: %w", entry.Cmd, ErrInvalidEntry)
				return false
			}
			entry.When = when
			haveWhen = true
			continue
		}
		// Everything else — paths: blocks, continuation lines, fields this
		// tool does not understand — is the entry's verbatim extra block.
		extra = append(extra, line)
	}

	if !haveWhen {
		s.err = fmt.Errorf("entry %q: missing when: %w", entry.Cmd, ErrInvalidEntry)
		return false
	}
	if extra != nil {
		entry.Extra.String = strings.Join(extra, "\n")
		entry.Extra.Valid = true
	}

	s.cur = entry
	return true
}

// Entry returns the entry produced by the last successful Next.
func (s *Scanner) Entry() Entry { return s.cur }

// Err returns the first error encountered while scanning, if any.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) nextLine() (string, bool) {
	if s.unread {
		s.unread = false
		return s.lookback, true
	}
	if s.lines.Scan() {
		return s.lines.Text(), true
	}
	return "", false
}

func (s *Scanner) unreadLine(line string) {
	s.lookback = line
	s.unread = true
}

func (s *Scanner) finish() {
	s.done = true
	if err := s.lines.Err(); err != nil {
		s.err = fmt.Errorf("scan history: %w", err)
	}
}

// ParseAll decodes a whole fish_history file into entries, in file order.
// Empty input yields an empty slice, not nil.
func ParseAll(data []byte) ([]Entry, error) {
	entries := []Entry{}
	sc := NewScanner(data)
	for sc.Next() {
		entries = append(entries, sc.Entry())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Render serializes entries back into fish_history bytes, the inverse of
// ParseAll: the Cmd, When, and Extra of every entry round-trip exactly,
// including an absent Extra staying absent.
//
// Extra blocks produced by the parser never contain a line with the entry
// marker prefix, which is what keeps the round trip exact; Render writes
// whatever it is given and does not re-check.
func Render(entries []Entry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		b.WriteString(cmdPrefix)
		b.WriteString(e.Cmd)
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s%d\n", whenPrefix, e.When)
		if e.Extra.Valid {
			b.WriteString(e.Extra.String)
			b.WriteByte('\n')
		}
	}
	return b.Bytes()
}
