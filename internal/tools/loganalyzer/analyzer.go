// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package loganalyzer

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"
)

// Severity bands a detection alert by how far its count exceeds the
// threshold. The banding is monotonic in count: low below twice the
// threshold, medium below three times, high beyond.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SubjectKind distinguishes user-keyed from ip-keyed alerts.
type SubjectKind string

const (
	SubjectUser SubjectKind = "user"
	SubjectIP   SubjectKind = "ip"
)

// DetectionAlert flags one subject whose failed-login count within some
// window of the configured length reached the threshold. WindowStart and
// WindowEnd bound the tightest such window.
type DetectionAlert struct {
	Subject     string      `json:"subject"`
	SubjectKind SubjectKind `json:"subject_kind"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Count       int         `json:"count"`
	Threshold   int         `json:"threshold"`
	Severity    Severity    `json:"severity"`
}

// FailedLoginReport aggregates failed logins since a cutoff.
type FailedLoginReport struct {
	Total   int            `json:"total"`
	ByUser  map[string]int `json:"by_user"`
	ByIP    map[string]int `json:"by_ip"`
	Entries []Event        `json:"entries"`
}

// ActivityReport groups one user's events by action type.
type ActivityReport struct {
	User     string             `json:"user"`
	Total    int                `json:"total"`
	ByAction map[string]int     `json:"by_action"`
	Grouped  map[string][]Event `json:"grouped"`
}

// Analyzer runs windowed and aggregate analysis over the event store.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	store EventStore
}

// NewAnalyzer creates an Analyzer over the given store.
func NewAnalyzer(store EventStore) *Analyzer {
	return &Analyzer{store: store}
}

// FailedLogins reports failed login attempts at or after since.
func (a *Analyzer) FailedLogins(ctx context.Context, since time.Time) (*FailedLoginReport, error) {
	events, err := a.store.Events(ctx)
	if err != nil {
		return nil, err
	}

	report := &FailedLoginReport{
		ByUser: make(map[string]int),
		ByIP:   make(map[string]int),
	}
	for _, ev := range events {
		if ev.Action != ActionLoginFailed || ev.Timestamp.Before(since) {
			continue
		}
		report.Total++
		report.ByUser[ev.User]++
		report.ByIP[ev.IP]++
		report.Entries = append(report.Entries, ev)
	}
	return report, nil
}

// DetectBruteForce slides a window of the given length over the failed
// login stream, independently per user and per ip. One alert is emitted
// per subject whose maximum windowed count reaches threshold, bounded by
// the tightest window achieving that count. Alerts are ordered users
// first, then ips, each by subject ascending.
func (a *Analyzer) DetectBruteForce(ctx context.Context, threshold int, window time.Duration) ([]DetectionAlert, error) {
	events, err := a.store.Events(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]time.Time)
	byIP := make(map[string][]time.Time)
	for _, ev := range events {
		if ev.Action != ActionLoginFailed {
			continue
		}
		byUser[ev.User] = append(byUser[ev.User], ev.Timestamp)
		byIP[ev.IP] = append(byIP[ev.IP], ev.Timestamp)
	}

	var alerts []DetectionAlert
	alerts = append(alerts, detectSubjects(byUser, SubjectUser, threshold, window)...)
	alerts = append(alerts, detectSubjects(byIP, SubjectIP, threshold, window)...)
	return alerts, nil
}

func detectSubjects(series map[string][]time.Time, kind SubjectKind, threshold int, window time.Duration) []DetectionAlert {
	subjects := make([]string, 0, len(series))
	for s := range series {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	var alerts []DetectionAlert
	for _, subject := range subjects {
		if alert, ok := detectOne(series[subject], threshold, window); ok {
			alert.Subject = subject
			alert.SubjectKind = kind
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// detectOne computes the maximal windowed count over one subject's failed
// login timestamps. Window boundaries are inclusive: events exactly
// window apart count together. Among windows achieving the maximal count
// it picks the one with the smallest span, earliest first.
func detectOne(times []time.Time, threshold int, window time.Duration) (DetectionAlert, bool) {
	if threshold <= 0 || len(times) < threshold {
		return DetectionAlert{}, false
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })

	best := DetectionAlert{}
	j := 0
	for i := range times {
		if j < i {
			j = i
		}
		for j+1 < len(times) && times[j+1].Sub(times[i]) <= window {
			j++
		}
		count := j - i + 1
		span := times[j].Sub(times[i])
		if count > best.Count || (count == best.Count && span < best.WindowEnd.Sub(best.WindowStart)) {
			best.Count = count
			best.WindowStart = times[i]
			best.WindowEnd = times[j]
		}
	}

	if best.Count < threshold {
		return DetectionAlert{}, false
	}
	best.Threshold = threshold
	best.Severity = severityFor(best.Count, threshold)
	return best, true
}

func severityFor(count, threshold int) Severity {
	switch {
	case count >= 3*threshold:
		return SeverityHigh
	case count >= 2*threshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// UserActivity returns one user's events at or after since, in stream
// order, grouped by action type for presentation.
func (a *Analyzer) UserActivity(ctx context.Context, user string, since time.Time) (*ActivityReport, error) {
	events, err := a.store.Events(ctx)
	if err != nil {
		return nil, err
	}

	report := &ActivityReport{
		User:     user,
		ByAction: make(map[string]int),
		Grouped:  make(map[string][]Event),
	}
	for _, ev := range events {
		if ev.User != user || ev.Timestamp.Before(since) {
			continue
		}
		report.Total++
		report.ByAction[ev.Action]++
		report.Grouped[ev.Action] = append(report.Grouped[ev.Action], ev)
	}
	return report, nil
}

// Search returns events at or after since whose details or action
// contain the keyword, case-insensitive, in stream order.
func (a *Analyzer) Search(ctx context.Context, keyword string, since time.Time) ([]Event, error) {
	events, err := a.store.Events(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	var matches []Event
	for _, ev := range events {
		if ev.Timestamp.Before(since) {
			continue
		}
		if strings.Contains(strings.ToLower(ev.Details), needle) ||
			strings.Contains(strings.ToLower(ev.Action), needle) {
			matches = append(matches, ev)
		}
	}
	return matches, nil
}
