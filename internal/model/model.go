package model

import (
	"fmt"
	"strings"
	"time"
)

// Record is the normalized representation of one reported ETL event.
type Record struct {
	AccountName          string
	Environment          string
	StartTime            time.Time
	ErrorMessage         string // optional
	URL                  string // optional, e.g. pipeline run link
	RequiresConfirmation bool   // only honored by the per_record policy
}

// Key is the identity of the event across polls.
// Fields containing '|' can collide; upstream data is not expected to carry it.
func (r Record) Key() string {
	return strings.Join([]string{r.AccountName, r.Environment, FormatStartTime(r.StartTime)}, "|")
}

// Fields exposes the record for named template slots.
func (r Record) Fields() map[string]string {
	return map[string]string{
		"account_name":          r.AccountName,
		"environment":           r.Environment,
		"start_time":            FormatStartTime(r.StartTime),
		"error_message":         r.ErrorMessage,
		"url":                   r.URL,
		"requires_confirmation": fmt.Sprintf("%t", r.RequiresConfirmation),
	}
}

// FormatStartTime renders t as "2006-01-02 15:04:05", adding microseconds only when
// they are non-zero. Cache files written by earlier releases use the same text.
func FormatStartTime(t time.Time) string {
	s := t.Format("2006-01-02 15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Policy selects how a query's rows move from first sighting to notification.
type Policy string

const (
	// PolicyStaggered notifies a row on its second consecutive sighting.
	PolicyStaggered Policy = "staggered"
	// PolicyImmediate notifies a row the first time it is seen.
	PolicyImmediate Policy = "immediate"
	// PolicyPerRecord staggers only rows flagged with RequiresConfirmation.
	PolicyPerRecord Policy = "per_record"
)

// ParsePolicy maps a config value to a Policy. Empty means staggered.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyStaggered, nil
	case PolicyStaggered, PolicyImmediate, PolicyPerRecord:
		return p, nil
	default:
		return "", fmt.Errorf("unknown confirmation policy: %s", s)
	}
}

// Immediate reports whether r bypasses staggering under p.
func (p Policy) Immediate(r Record) bool {
	switch p {
	case PolicyImmediate:
		return true
	case PolicyPerRecord:
		return !r.RequiresConfirmation
	default:
		return false
	}
}
