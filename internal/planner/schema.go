// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package planner

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// planSchemaJSON constrains the shape of a reasoning plan. Tool ids are
// checked separately against the registry so a new tool never requires a
// schema change.
const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["needs_tools"],
  "properties": {
    "needs_tools": {"type": "boolean"},
    "reasoning": {"type": "string"},
    "tools_to_call": {
      "type": "array",
      "maxItems": 8,
      "items": {
        "type": "object",
        "required": ["tool"],
        "properties": {
          "tool": {"type": "string", "minLength": 1},
          "params": {"type": "object"},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

type planSchema struct {
	compiled *jsonschema.Schema
}

func compilePlanSchema() (*planSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodePlannerSchemaFailure, "parsing plan schema")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.json", doc); err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodePlannerSchemaFailure, "registering plan schema")
	}
	compiled, err := compiler.Compile("plan.json")
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodePlannerSchemaFailure, "compiling plan schema")
	}
	return &planSchema{compiled: compiled}, nil
}

func (s *planSchema) validate(v any) error {
	return s.compiled.Validate(v)
}
