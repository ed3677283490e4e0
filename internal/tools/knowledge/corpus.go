// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package knowledge

import (
	"encoding/json"
	"os"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// DefaultCorpus returns the built-in security policy and playbook
// documents indexed when no external collection is configured.
func DefaultCorpus() []Document {
	return []Document{
		{
			ID:       "phishing_policy",
			Title:    "Phishing Email Response Policy",
			Content:  "When you receive a suspected phishing email: 1) Do NOT click any links or download attachments. 2) Do NOT reply to the sender. 3) Forward the email to security@company.com with subject 'PHISHING REPORT'. 4) Delete the email from your inbox. 5) Report to your manager if you clicked any links. 6) Change your password immediately if you entered credentials. The Security team will investigate within 1 hour and notify affected users.",
			Category: "incident_response",
			Tags:     []string{"phishing", "email", "social_engineering"},
		},
		{
			ID:       "data_breach_playbook",
			Title:    "Data Breach Response Playbook",
			Content:  "Data breach response steps: 1) IMMEDIATELY isolate affected systems - disconnect from network. 2) Contact Security Lead (security@company.com, phone: ext 5555) within 15 minutes. 3) DO NOT shut down systems - preserve evidence. 4) Document timeline and affected data. 5) Security team will: assess scope, contain breach, analyze logs, notify stakeholders. 6) Legal and PR teams engaged for external communications. 7) Post-incident review within 48 hours.",
			Category: "incident_response",
			Tags:     []string{"breach", "data_loss", "incident"},
		},
		{
			ID:       "failed_login_policy",
			Title:    "Failed Login Investigation",
			Content:  "Investigating failed login attempts: 1) Check if attempts are distributed or from single IP. 2) Verify if legitimate user forgot password. 3) More than 5 failed attempts in 10 minutes triggers account lock. 4) Check for credential stuffing patterns (same username, many IPs). 5) Brute force attacks: block IP immediately, alert Security team. 6) Review authentication logs for anomalies. 7) Enable MFA for affected accounts.",
			Category: "security_monitoring",
			Tags:     []string{"authentication", "failed_login", "monitoring"},
		},
		{
			ID:       "production_outage_security",
			Title:    "Security-Related Production Outage",
			Content:  "Escalation for security-caused production outage: 1) Page on-call Security Engineer immediately (PagerDuty). 2) Simultaneously alert DevOps lead and CTO. 3) Initiate incident bridge call within 5 minutes. 4) Assess if attack is ongoing - if yes, enable DDoS protection and block malicious IPs. 5) If breach detected, follow data breach playbook. 6) Coordinate with Engineering for system restoration. 7) All hands on deck - Senior leadership notified within 30 minutes. 8) Customer communication via Status page.",
			Category: "escalation",
			Tags:     []string{"outage", "escalation", "production"},
		},
		{
			ID:       "password_policy",
			Title:    "Password and Credential Policy",
			Content:  "Password requirements: Minimum 12 characters, including uppercase, lowercase, number, and special character. Passwords expire every 90 days. Cannot reuse last 5 passwords. MFA required for all production systems. Shared credentials are prohibited. Use password manager (1Password). Service account credentials must be stored in vault (HashiCorp Vault). Credential rotation for service accounts every 180 days. Never commit credentials to git repos.",
			Category: "policy",
			Tags:     []string{"password", "credentials", "authentication"},
		},
		{
			ID:       "access_control",
			Title:    "Access Control and Least Privilege",
			Content:  "Access control principles: Follow principle of least privilege - users get minimum access needed. Access reviews quarterly by managers. New employees: access provisioned based on role template. Departing employees: access revoked immediately upon termination. Privileged access (admin/root) requires approval from Security team and CTO. All privileged actions logged and audited. Time-bound access for contractors (max 90 days, renewable). VPN required for all remote access.",
			Category: "policy",
			Tags:     []string{"access_control", "permissions", "rbac"},
		},
		{
			ID:       "vulnerability_disclosure",
			Title:    "Vulnerability Disclosure Policy",
			Content:  "Security vulnerability handling: External reports sent to security@company.com acknowledged within 24 hours. Internal discoveries reported immediately to Security team. Critical vulnerabilities patched within 48 hours. High severity within 7 days. Medium within 30 days. Patch management coordinated with DevOps. Security advisories published for customer-facing vulnerabilities. Bug bounty program for external researchers - rewards up to $10,000 for critical findings.",
			Category: "policy",
			Tags:     []string{"vulnerability", "patching", "disclosure"},
		},
		{
			ID:       "incident_severity",
			Title:    "Incident Severity Classification",
			Content:  "Incident severity levels: CRITICAL (Sev-1) - Active breach, production down, data loss, immediate response. HIGH (Sev-2) - Significant security risk, degraded service, potential data exposure, response within 1 hour. MEDIUM (Sev-3) - Security concern, no immediate risk, response within 4 hours. LOW (Sev-4) - Minor issue, policy violation, response within 24 hours. Severity determines escalation path and response time.",
			Category: "incident_response",
			Tags:     []string{"severity", "classification", "incident"},
		},
	}
}

// LoadDocumentsFile reads additional documents from a JSON file and
// appends them to the built-in corpus.
func LoadDocumentsFile(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, sentraerr.Wrapf(err, sentraerr.CodeConfigLoadReadFailure, "reading documents %s", path)
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, sentraerr.Wrapf(err, sentraerr.CodeKnowledgeIndexFailure, "parsing documents %s", path)
	}
	return docs, nil
}
