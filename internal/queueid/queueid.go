// Package queueid detects queue IDs in SMTP response text. A queue ID is a
// token identifying a queued message; its presence correlates with a real,
// accepting mailbox.
package queueid

import "regexp"

// Result is the outcome of a detection attempt.
type Result struct {
	Detected bool
	Pattern  string
	Value    string
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// patterns is tried in order; the first match wins.
var patterns = []namedPattern{
	{"postfix_hex", regexp.MustCompile(`[0-9A-F]{10,14}`)},
	{"generic_id", regexp.MustCompile(`[A-Za-z0-9]{14,}`)},
	{"path_id", regexp.MustCompile(`[A-Za-z0-9]{8,}/[A-Za-z0-9]{8,}`)},
	{"uuid", regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)},
}

// Detect scans message for a queue ID using the ordered pattern list.
func Detect(message string) Result {
	if message == "" {
		return Result{}
	}
	for _, p := range patterns {
		if m := p.re.FindString(message); m != "" {
			return Result{Detected: true, Pattern: p.name, Value: m}
		}
	}
	return Result{}
}
