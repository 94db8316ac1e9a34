package lockname

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// LockPrefix marks a file claimed by a running instance.
	LockPrefix = ".fp-lock-"
	// DonePrefix marks a file whose command succeeded.
	DonePrefix = ".fp-done-"
	// HiddenMarker starts names that scans never treat as work.
	HiddenMarker = "."
	// TimestampLayout is the UTC claim time embedded in lock and done names.
	TimestampLayout = "20060102T150405"
)

var (
	lockPattern = regexp.MustCompile(`^\.fp-lock-\d{8}T\d{6}_\d+_`)
	donePattern = regexp.MustCompile(`^\.fp-done-\d{8}T\d{6}_\d+_`)
)

// Kind distinguishes lock records from done records.
type Kind int

const (
	KindLock Kind = iota + 1
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindLock:
		return "lock"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Record is a decoded lock or done file name.
type Record struct {
	Kind     Kind
	Time     time.Time
	PID      int
	Original string
}

// Lock returns the lock name for original claimed at t by pid.
func Lock(original string, t time.Time, pid int) string {
	return encode(LockPrefix, original, t, pid)
}

// Done returns the done name for original finalized at t by pid.
func Done(original string, t time.Time, pid int) string {
	return encode(DonePrefix, original, t, pid)
}

func encode(prefix, original string, t time.Time, pid int) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(TimestampLayout) + 12 + len(original))
	b.WriteString(prefix)
	b.WriteString(t.UTC().Format(TimestampLayout))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('_')
	b.WriteString(original)
	return b.String()
}

// IsLock reports whether name matches the lock pattern.
func IsLock(name string) bool {
	return lockPattern.MatchString(name)
}

// IsDone reports whether name matches the done pattern.
func IsDone(name string) bool {
	return donePattern.MatchString(name)
}

// IsHidden reports whether scans must ignore name.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, HiddenMarker)
}

// Parse decodes a lock or done name. It returns false for any other name and
// for names whose timestamp is not a valid calendar time.
func Parse(name string) (Record, bool) {
	var kind Kind
	var match []int
	switch {
	case strings.HasPrefix(name, LockPrefix):
		kind, match = KindLock, lockPattern.FindStringIndex(name)
	case strings.HasPrefix(name, DonePrefix):
		kind, match = KindDone, donePattern.FindStringIndex(name)
	}
	if match == nil {
		return Record{}, false
	}

	header := name[len(LockPrefix) : match[1]-1]
	stamp, pidText, ok := strings.Cut(header, "_")
	if !ok {
		return Record{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, stamp, time.UTC)
	if err != nil {
		return Record{}, false
	}
	pid, err := strconv.Atoi(pidText)
	if err != nil {
		return Record{}, false
	}
	return Record{Kind: kind, Time: ts, PID: pid, Original: name[match[1]:]}, true
}

// Original strips one lock or done prefix from name. Names that are neither
// are returned unchanged.
func Original(name string) string {
	if loc := lockPattern.FindStringIndex(name); loc != nil {
		return name[loc[1]:]
	}
	if loc := donePattern.FindStringIndex(name); loc != nil {
		return name[loc[1]:]
	}
	return name
}
