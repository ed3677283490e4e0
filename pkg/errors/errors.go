// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeSanitizeInputBlocked Code = "sanitize.input.blocked"
	CodeSanitizeRuleInvalid  Code = "sanitize.rule.invalid"

	CodePolicyToolDenied    Code = "policy.tool.denied"
	CodePolicyRoleDenied    Code = "policy.role.denied"
	CodePolicyRoleUnknown   Code = "policy.role.unknown"
	CodePolicyMatrixInvalid Code = "policy.matrix.invalid"

	CodePlannerPlanInvalid   Code = "planner.plan.invalid"
	CodePlannerSchemaFailure Code = "planner.schema.failure"
	CodePlannerInputInvalid  Code = "planner.input.invalid"

	CodeReasonerUpstreamFailure Code = "reasoner.upstream.failure"
	CodeReasonerUpstreamTimeout Code = "reasoner.upstream.timeout"
	CodeReasonerNotConfigured   Code = "reasoner.provider.not_configured"

	CodeExecutorToolUnknown Code = "executor.tool.unknown"
	CodeExecutorToolFailure Code = "executor.tool.failure"
	CodeExecutorToolTimeout Code = "executor.tool.timeout"

	CodeKnowledgeIndexFailure Code = "knowledge.index.failure"
	CodeKnowledgeEmbedFailure Code = "knowledge.embed.failure"
	CodeKnowledgeQueryInvalid Code = "knowledge.query.invalid_input"

	CodeLogStoreQueryInvalid Code = "logstore.query.invalid_input"

	CodeAuditStoreFailure       Code = "audit.store.failure"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerRateLimited      Code = "server.rate.budget_exceeded"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerStartFailure     Code = "server.start.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldCorrelationID(value string) Attr {
	return Field("correlation_id", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldRole(value string) Attr {
	return Field("role", value)
}

func FieldUser(value string) Attr {
	return Field("user", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsBlocked reports whether the error came from the input sanitizer.
func IsBlocked(err error) bool {
	return HasCode(err, CodeSanitizeInputBlocked)
}

// IsDenied reports whether the error is an authorization denial.
func IsDenied(err error) bool {
	r := reason(CodeOf(err))
	return r == "denied" || r == "forbidden"
}

func IsUnauthorized(err error) bool {
	return reason(CodeOf(err)) == "unauthorized"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "blocked"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "budget_exceeded"
}

func IsUpstreamFailure(err error) bool {
	return strings.Contains(string(CodeOf(err)), "upstream")
}

func HTTPStatus(err error) int {
	switch {
	case IsBlocked(err) || IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsDenied(err):
		return http.StatusForbidden
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
