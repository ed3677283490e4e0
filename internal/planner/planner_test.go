// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package planner_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-dev/sentra/internal/planner"
	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/internal/tools"
)

// scriptedClient returns canned replies in order and records prompts.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Generate(_ context.Context, _, userPrompt string) (string, error) {
	c.prompts = append(c.prompts, userPrompt)
	if c.err != nil {
		return "", c.err
	}
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	return reply, nil
}

func newPlanner(t *testing.T, client *scriptedClient) *planner.Planner {
	t.Helper()
	p, err := planner.New(client, nil)
	require.NoError(t, err)
	return p
}

func testCatalog() []tools.CatalogEntry {
	return []tools.CatalogEntry{
		{ID: tools.IDKnowledgeBase, Description: "search policies"},
		{ID: tools.IDLogAnalyzer, Description: "analyze logs"},
	}
}

func TestDecide_ValidPlan(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{`{
		"needs_tools": true,
		"reasoning": "policy lookup",
		"tools_to_call": [
			{"tool": "knowledge_base", "params": {"query": "phishing policy"}, "reason": "user asked about policy"}
		]
	}`}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "what is the phishing policy", policy.RoleSales, testCatalog())
	require.NoError(t, err)
	require.False(t, d.Rejected())
	require.NotNil(t, d.Plan)
	assert.True(t, d.Plan.NeedsTools)
	require.Len(t, d.Plan.Calls, 1)
	assert.Equal(t, tools.IDKnowledgeBase, d.Plan.Calls[0].Tool)
	assert.Equal(t, "phishing policy", d.Plan.Calls[0].Params["query"])
}

func TestDecide_PlanWrappedInProse(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{
		"Sure, here is the plan:\n```json\n{\"needs_tools\": false, \"reasoning\": \"greeting\"}\n```\nDone.",
	}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "hello", policy.RoleSales, testCatalog())
	require.NoError(t, err)
	require.False(t, d.Rejected())
	assert.False(t, d.Plan.NeedsTools)
	assert.Empty(t, d.Plan.Calls)
}

func TestDecide_RejectsNonJSON(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{"I cannot answer in JSON today."}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "q", policy.RoleSales, testCatalog())
	require.NoError(t, err)
	require.True(t, d.Rejected())
	assert.Contains(t, d.Rejection.Reason, "no JSON object")
}

func TestDecide_RejectsMissingNeedsTools(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{`{"reasoning": "forgot the flag"}`}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "q", policy.RoleSales, testCatalog())
	require.NoError(t, err)
	require.True(t, d.Rejected())
	assert.Contains(t, d.Rejection.Reason, "schema")
}

func TestDecide_RejectsUnknownTool(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{`{
		"needs_tools": true,
		"tools_to_call": [{"tool": "shell_exec", "params": {}}]
	}`}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "q", policy.RoleAdmin, testCatalog())
	require.NoError(t, err)
	require.True(t, d.Rejected())
	assert.Contains(t, d.Rejection.Reason, "unknown tool")
}

func TestDecide_KnownButUnpermittedToolSurvivesPlanning(t *testing.T) {
	t.Parallel()

	// A plan naming a real tool outside the caller's catalog is NOT
	// rejected here; the execution checkpoint turns it into a visible
	// denial instead.
	client := &scriptedClient{replies: []string{`{
		"needs_tools": true,
		"tools_to_call": [{"tool": "log_analyzer", "params": {"action": "failed_logins"}}]
	}`}}
	p := newPlanner(t, client)

	salesCatalog := []tools.CatalogEntry{{ID: tools.IDKnowledgeBase, Description: "search policies"}}
	d, err := p.Decide(context.Background(), "q", policy.RoleSales, salesCatalog)
	require.NoError(t, err)
	require.False(t, d.Rejected())
	require.Len(t, d.Plan.Calls, 1)
	assert.Equal(t, tools.IDLogAnalyzer, d.Plan.Calls[0].Tool)
}

func TestDecide_RejectsNeedsToolsWithoutCalls(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{`{"needs_tools": true, "tools_to_call": []}`}}
	p := newPlanner(t, client)

	d, err := p.Decide(context.Background(), "q", policy.RoleSales, testCatalog())
	require.NoError(t, err)
	assert.True(t, d.Rejected())
}

func TestDecide_PropagatesUpstreamError(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{err: errors.New("upstream down")}
	p := newPlanner(t, client)

	_, err := p.Decide(context.Background(), "q", policy.RoleSales, testCatalog())
	assert.Error(t, err)
}

func TestDecide_PromptContainsCatalogOnly(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{`{"needs_tools": false}`}}
	p := newPlanner(t, client)

	salesCatalog := []tools.CatalogEntry{{ID: tools.IDKnowledgeBase, Description: "search policies"}}
	_, err := p.Decide(context.Background(), "q", policy.RoleSales, salesCatalog)
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "knowledge_base")
	assert.NotContains(t, client.prompts[0], "log_analyzer")
}

func TestSynthesize_IncludesToolResults(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{replies: []string{"final answer"}}
	p := newPlanner(t, client)

	results := []tools.Result{
		{Tool: tools.IDKnowledgeBase, Status: tools.ResultSuccess, Payload: map[string]any{"results_found": 2}},
		{Tool: tools.IDLogAnalyzer, Status: tools.ResultDenied, ErrorDetail: "role sales is not permitted to use log_analyzer"},
	}
	answer, err := p.Synthesize(context.Background(), "query", policy.RoleSales, results)
	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "results_found")
	assert.True(t, strings.Contains(prompt, "unavailable"), "failed tools surface as unavailable")
	assert.Contains(t, prompt, "not permitted")
}

func TestNoToolsPlan(t *testing.T) {
	t.Parallel()
	plan := planner.NoToolsPlan()
	assert.False(t, plan.NeedsTools)
	assert.Empty(t, plan.Calls)
}
