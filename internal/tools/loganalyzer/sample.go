// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package loganalyzer

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// SampleEvents generates a deterministic week of synthetic security
// events ending at now. It seeds the in-memory backend so a fresh
// install has something to analyze: mostly routine traffic, a scatter of
// external failed logins, and one concentrated burst that the detector
// is guaranteed to flag.
func SampleEvents(now time.Time) []Event {
	rng := rand.New(rand.NewPCG(0x5e17a, 0x109a))

	users := []string{"john.doe", "jane.smith", "bob.wilson", "alice.chen", "admin", "service_account"}
	ips := []string{"192.168.1.100", "192.168.1.101", "10.0.0.50", "172.16.0.10", "203.0.113.45", "198.51.100.89"}
	actions := []string{"login_success", ActionLoginFailed, "password_change", "file_access", "api_call"}
	sources := []string{"web_app", "vpn", "ssh", "api", "internal_app"}

	suspiciousUsers := []string{"unknown_user", "admin", "root"}
	externalIPs := []string{"203.0.113.45", "198.51.100.89"}
	remoteSources := []string{"ssh", "vpn"}

	start := now.Add(-7 * 24 * time.Hour)
	events := make([]Event, 0, 520)

	ts := start
	for len(events) < 500 && ts.Before(now) {
		ev := Event{Timestamp: ts}
		if rng.Float64() < 0.1 {
			ev.User = suspiciousUsers[rng.IntN(len(suspiciousUsers))]
			ev.Action = ActionLoginFailed
			ev.IP = externalIPs[rng.IntN(len(externalIPs))]
			ev.Source = remoteSources[rng.IntN(len(remoteSources))]
		} else {
			ev.User = users[rng.IntN(len(users))]
			ev.Action = actions[rng.IntN(len(actions))]
			ev.IP = ips[rng.IntN(len(ips))]
			ev.Source = sources[rng.IntN(len(sources))]
		}
		ev.Status = statusOf(ev.Action)
		ev.Details = fmt.Sprintf("%s from %s", ev.Action, ev.Source)
		events = append(events, ev)

		ts = ts.Add(time.Duration(1+rng.IntN(30)) * time.Minute)
	}

	// A concentrated burst against one account inside the default
	// detection window.
	burstStart := now.Add(-2 * time.Hour)
	for i := 0; i < 6; i++ {
		events = append(events, Event{
			Timestamp: burstStart.Add(time.Duration(i) * time.Minute),
			User:      "admin",
			Action:    ActionLoginFailed,
			Source:    "ssh",
			IP:        "203.0.113.45",
			Status:    EventFailed,
			Details:   "login_failed from ssh",
		})
	}

	return events
}

func statusOf(action string) EventStatus {
	if action == ActionLoginFailed {
		return EventFailed
	}
	return EventSuccess
}
