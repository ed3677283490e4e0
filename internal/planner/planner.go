// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package planner adapts the external reasoning capability into a
// validated tool plan. The reasoning output is adversarial-adjacent: it
// is influenced by the same user text the sanitizer screened, so the
// plan is never executed directly. It is parsed defensively, checked
// against a JSON Schema and the closed tool-id set, and every tool it
// names is re-authorized by policy before invocation.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/internal/reasoner"
	"github.com/sentra-dev/sentra/internal/tools"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Plan is a structurally validated tool plan. Validation guarantees every
// call names a known tool id with object-shaped parameters; it does NOT
// imply authorization, which the executor re-checks per call.
type Plan struct {
	Calls      []tools.Call
	NeedsTools bool
	Rationale  string
}

// Rejection records why a reasoning reply could not become a Plan. A
// rejected decision fails closed: the request proceeds with no tools.
type Rejection struct {
	Reason string
	// Raw holds a bounded prefix of the offending reply for the audit
	// trail.
	Raw string
}

// Decision is the tagged outcome of one planning call: exactly one of
// Plan or Rejection is set.
type Decision struct {
	Plan      *Plan
	Rejection *Rejection
}

// Rejected reports whether the decision failed closed.
func (d Decision) Rejected() bool { return d.Rejection != nil }

const maxRawRejectionLen = 512

// Planner drives the reasoning capability for tool selection and final
// response synthesis.
type Planner struct {
	client reasoner.Client
	schema *planSchema
	log    *slog.Logger
}

// New creates a Planner. If log is nil, slog.Default is used.
func New(client reasoner.Client, log *slog.Logger) (*Planner, error) {
	if log == nil {
		log = slog.Default()
	}
	schema, err := compilePlanSchema()
	if err != nil {
		return nil, err
	}
	return &Planner{client: client, schema: schema, log: log}, nil
}

// Decide asks the reasoning capability which tools to call for the query.
// catalog must already be filtered to the role's permitted tools; it
// bounds what the capability is told about, not what the plan may name.
// A plan naming an unpermitted known tool survives planning and is
// denied at the execution checkpoint instead, keeping the denial visible.
//
// A malformed reply, or one naming a tool outside the closed registry,
// yields a Rejection, never an error. The only error path is the
// upstream provider failing after its retry.
func (p *Planner) Decide(ctx context.Context, query string, role policy.Role, catalog []tools.CatalogEntry) (Decision, error) {
	reply, err := p.client.Generate(ctx, decisionSystemPrompt, decisionPrompt(query, role, catalog))
	if err != nil {
		return Decision{}, err
	}

	plan, reject := p.parsePlan(reply)
	if reject != nil {
		p.log.Warn("rejected reasoning plan",
			"role", string(role),
			"reason", reject.Reason,
		)
		return Decision{Rejection: reject}, nil
	}
	return Decision{Plan: plan}, nil
}

// parsePlan extracts and validates the JSON plan from a raw reply.
func (p *Planner) parsePlan(reply string) (*Plan, *Rejection) {
	raw, ok := extractJSONObject(reply)
	if !ok {
		return nil, rejection("no JSON object in reasoning reply", reply)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, rejection("reasoning reply is not valid JSON", reply)
	}

	if err := p.schema.validate(decoded); err != nil {
		return nil, rejection(fmt.Sprintf("plan failed schema validation: %v", err), reply)
	}

	// Schema validation makes these assertions safe.
	obj := decoded.(map[string]any)
	plan := &Plan{}
	plan.NeedsTools, _ = obj["needs_tools"].(bool)
	plan.Rationale, _ = obj["reasoning"].(string)

	rawCalls, _ := obj["tools_to_call"].([]any)
	for _, rc := range rawCalls {
		call := rc.(map[string]any)
		id := tools.ID(call["tool"].(string))
		if !id.Valid() {
			return nil, rejection(fmt.Sprintf("plan names unknown tool %q", id), reply)
		}
		params, _ := call["params"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		reason, _ := call["reason"].(string)
		plan.Calls = append(plan.Calls, tools.Call{Tool: id, Params: params, Reason: reason})
	}

	if plan.NeedsTools && len(plan.Calls) == 0 {
		return nil, rejection("plan claims needs_tools with no tool calls", reply)
	}
	return plan, nil
}

func rejection(reason, raw string) *Rejection {
	if len(raw) > maxRawRejectionLen {
		raw = raw[:maxRawRejectionLen]
	}
	return &Rejection{Reason: reason, Raw: raw}
}

// NoToolsPlan is the fail-closed plan used after a rejection.
func NoToolsPlan() *Plan {
	return &Plan{NeedsTools: false}
}

// extractJSONObject returns the first balanced top-level JSON object in
// s. Reasoning replies often wrap the object in prose or code fences.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const decisionSystemPrompt = "You are a tool selection agent for a security assistant. Respond only with valid JSON."

func decisionPrompt(query string, role policy.Role, catalog []tools.CatalogEntry) string {
	var b strings.Builder
	b.WriteString("Given the user query and available tools, decide which tools should be called.\n\nAvailable tools:\n")
	for _, entry := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", entry.ID, entry.Description)
	}
	fmt.Fprintf(&b, "\nUser query: %q\nUser role: %s\n\n", query, role)
	b.WriteString(`Respond in JSON format:
{
  "tools_to_call": [
    {"tool": "tool_name", "params": {"param1": "value"}, "reason": "why this tool"}
  ],
  "needs_tools": true,
  "reasoning": "explanation of decision"
}

If no tools are needed, respond with needs_tools: false.
`)
	return b.String()
}

// Synthesize folds tool results into the final user-facing answer.
func (p *Planner) Synthesize(ctx context.Context, query string, role policy.Role, results []tools.Result) (string, error) {
	system := fmt.Sprintf(`You are a Security Incident Knowledge Assistant.
User role: %s

Provide helpful, accurate security guidance. Use the tool results provided to give specific answers.
Be clear, actionable, and security-focused. Never share information outside the user's permission level.`, role)

	var b strings.Builder
	b.WriteString(query)
	if len(results) > 0 {
		b.WriteString("\n\n=== Information gathered from tools ===\n")
		for _, res := range results {
			fmt.Fprintf(&b, "\n[%s] (%s):\n", res.Tool, res.Status)
			if res.Status == tools.ResultSuccess {
				payload, err := json.MarshalIndent(res.Payload, "", "  ")
				if err != nil {
					return "", sentraerr.Wrap(err, sentraerr.CodePlannerInputInvalid, "marshalling tool payload")
				}
				b.Write(payload)
				b.WriteString("\n")
			} else {
				fmt.Fprintf(&b, "unavailable: %s\n", res.ErrorDetail)
			}
		}
	}

	return p.client.Generate(ctx, system, b.String())
}
