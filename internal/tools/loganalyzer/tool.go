// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package loganalyzer

import (
	"context"
	"time"

	"github.com/sentra-dev/sentra/internal/tools"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Parameter defaults mirror the analyzer's operational conventions: a day
// of history for aggregate views, a week for keyword search.
const (
	DefaultLookbackHours       = 24
	DefaultSearchLookbackHours = 168
	DefaultBruteForceThreshold = 5
	DefaultBruteForceWindowMin = 10
)

// Tool adapts the Analyzer to the executor's tool registry. Each plan
// parameter set carries an "action" selector naming one analyzer
// operation.
type Tool struct {
	analyzer *Analyzer
	now      func() time.Time
}

// NewTool wraps an Analyzer as the log_analyzer tool.
func NewTool(a *Analyzer) *Tool {
	return &Tool{analyzer: a, now: time.Now}
}

// NewToolAt is like NewTool with an injected clock for tests.
func NewToolAt(a *Analyzer, now func() time.Time) *Tool {
	return &Tool{analyzer: a, now: now}
}

func (t *Tool) ID() tools.ID { return tools.IDLogAnalyzer }

func (t *Tool) Describe() tools.CatalogEntry {
	return tools.CatalogEntry{
		ID:          tools.IDLogAnalyzer,
		Description: "Analyze security logs. Params: action (failed_logins|brute_force|user_activity|search), hours (int), user (string), threshold (int), time_window_minutes (int), keyword (string).",
	}
}

func (t *Tool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	action, _ := params["action"].(string)
	if action == "" {
		action = "failed_logins"
	}

	switch action {
	case "failed_logins":
		since := t.now().Add(-time.Duration(intParam(params, "hours", DefaultLookbackHours)) * time.Hour)
		return t.analyzer.FailedLogins(ctx, since)

	case "brute_force":
		threshold := intParam(params, "threshold", DefaultBruteForceThreshold)
		window := time.Duration(intParam(params, "time_window_minutes", DefaultBruteForceWindowMin)) * time.Minute
		return t.analyzer.DetectBruteForce(ctx, threshold, window)

	case "user_activity":
		user, _ := params["user"].(string)
		if user == "" {
			return nil, sentraerr.New(sentraerr.CodeLogStoreQueryInvalid, "user parameter required for user_activity")
		}
		since := t.now().Add(-time.Duration(intParam(params, "hours", DefaultLookbackHours)) * time.Hour)
		return t.analyzer.UserActivity(ctx, user, since)

	case "search":
		keyword, _ := params["keyword"].(string)
		if keyword == "" {
			keyword, _ = params["query"].(string)
		}
		if keyword == "" {
			return nil, sentraerr.New(sentraerr.CodeLogStoreQueryInvalid, "keyword parameter required for search")
		}
		since := t.now().Add(-time.Duration(intParam(params, "hours", DefaultSearchLookbackHours)) * time.Hour)
		return t.analyzer.Search(ctx, keyword, since)

	default:
		return nil, sentraerr.Errorf(sentraerr.CodeLogStoreQueryInvalid, "unknown log_analyzer action %q", action)
	}
}

// intParam reads an integer plan parameter. JSON numbers arrive as
// float64; plans built in-process may carry int.
func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
