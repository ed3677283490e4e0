// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package sanitize

import (
	"os"
	"regexp"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultRules returns the built-in prompt-injection rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "instruction_override",
			Pattern:  regexp.MustCompile(`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "role_reassignment",
			Pattern:  regexp.MustCompile(`(?i)(you\s+are\s+now|from\s+now\s+on\s+you\s+are|act\s+as\s+if\s+you\s+are)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "new_instructions",
			Pattern:  regexp.MustCompile(`(?i)new\s+(instructions|rules|system\s+prompt)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "system_role_injection",
			Pattern:  regexp.MustCompile(`(?i)system:\s*you\s+are`),
			Severity: SeverityHigh,
		},
		{
			Name:     "privileged_mode",
			Pattern:  regexp.MustCompile(`(?i)(admin|developer|god)\s+mode`),
			Severity: SeverityHigh,
		},
		{
			Name:     "control_tokens",
			Pattern:  regexp.MustCompile(`(?i)(</system>|<\|im_end\|>|<\|endoftext\|>|<<SYS>>)`),
			Severity: SeverityHigh,
		},
		{
			Name:     "prompt_extraction",
			Pattern:  regexp.MustCompile(`(?i)(reveal|print|show)\s+(your|the)\s+(prompt|instructions|system\s+(message|prompt))`),
			Severity: SeverityMedium,
		},
		{
			Name:     "guideline_probing",
			Pattern:  regexp.MustCompile(`(?i)what\s+are\s+your\s+(instructions|rules|guidelines)`),
			Severity: SeverityMedium,
		},
		{
			Name:     "privilege_keywords",
			Pattern:  regexp.MustCompile(`(?i)(sudo\s|root\s+access|bypass\s+(security|auth))`),
			Severity: SeverityMedium,
		},
	}
}

// ruleFile is the YAML shape of an external rule pack.
type ruleFile struct {
	Rules []struct {
		Name     string `yaml:"name"`
		Pattern  string `yaml:"pattern"`
		Severity string `yaml:"severity"`
	} `yaml:"rules"`
}

// LoadRulesFile reads additional rules from a YAML rule pack. Loaded rules
// are appended after the built-in set, so built-in rules keep first-match
// priority.
func LoadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, sentraerr.Wrapf(err, sentraerr.CodeConfigLoadReadFailure, "reading sanitizer rules %s", path)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, sentraerr.Wrapf(err, sentraerr.CodeSanitizeRuleInvalid, "parsing sanitizer rules %s", path)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		pattern, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, sentraerr.Wrapf(err, sentraerr.CodeSanitizeRuleInvalid, "rule %d (%s): compiling pattern", i, r.Name)
		}
		sev := Severity(r.Severity)
		if sev == "" {
			sev = SeverityMedium
		}
		rules = append(rules, Rule{Name: r.Name, Pattern: pattern, Severity: sev})
	}
	return rules, nil
}
