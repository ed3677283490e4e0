// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sentra-dev/sentra/internal/audit"
	"github.com/sentra-dev/sentra/internal/pipeline"
	"github.com/sentra-dev/sentra/internal/policy"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

func (s *Server) registerRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-query",
		Method:      http.MethodPost,
		Path:        "/api/v1/query",
		Summary:     "Submit a natural-language request for mediation",
		Tags:        []string{"query"},
	}, s.handleQuery)

	huma.Register(api, huma.Operation{
		OperationID: "get-permissions",
		Method:      http.MethodGet,
		Path:        "/api/v1/permissions",
		Summary:     "List the caller's permissions",
		Tags:        []string{"policy"},
	}, s.handlePermissions)

	huma.Register(api, huma.Operation{
		OperationID: "get-audit-trail",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit/{correlationId}",
		Summary:     "Fetch the audit trail for one request",
		Tags:        []string{"audit"},
	}, s.handleAuditTrail)

	huma.Register(api, huma.Operation{
		OperationID: "list-audit-entries",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit",
		Summary:     "List recent audit entries",
		Tags:        []string{"audit"},
	}, s.handleAuditList)
}

// --- Request/Response types for huma ---

type queryInput struct {
	Body struct {
		Query string `json:"query" minLength:"1" doc:"Natural-language request"`
	}
}

type queryOutput struct {
	Body pipeline.Result
}

type permissionsOutput struct {
	Body struct {
		User        string   `json:"user"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
}

type auditTrailInput struct {
	CorrelationID string `path:"correlationId" doc:"Correlation id returned by the query endpoint"`
}

type auditTrailOutput struct {
	Body struct {
		CorrelationID string         `json:"correlation_id"`
		Entries       []*audit.Entry `json:"entries"`
	}
}

type auditListInput struct {
	Since time.Time `query:"since" doc:"Only entries at or after this time (RFC 3339)"`
}

type auditListOutput struct {
	Body struct {
		Entries []*audit.Entry `json:"entries"`
	}
}

func (s *Server) handleQuery(ctx context.Context, in *queryInput) (*queryOutput, error) {
	principal, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	result, err := s.pipeline.Handle(ctx, in.Body.Query, principal)
	if err != nil {
		s.log.Warn("query failed",
			"correlation_id", result.CorrelationID,
			"user", principal.ID,
			"error", err,
		)
		return nil, huma.NewError(sentraerr.HTTPStatus(err), err.Error())
	}
	return &queryOutput{Body: result}, nil
}

func (s *Server) handlePermissions(ctx context.Context, _ *struct{}) (*permissionsOutput, error) {
	principal, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	out := &permissionsOutput{}
	out.Body.User = principal.ID
	out.Body.Role = principal.Role
	out.Body.Permissions = s.matrix.Permissions(policy.Role(principal.Role))
	return out, nil
}

func (s *Server) handleAuditTrail(ctx context.Context, in *auditTrailInput) (*auditTrailOutput, error) {
	principal, err := s.requirePermission(ctx, policy.PermissionAuditLogs)
	if err != nil {
		return nil, err
	}

	entries, err := s.audit.EntriesFor(ctx, in.CorrelationID)
	if err != nil {
		s.log.Error("audit read failed", "correlation_id", in.CorrelationID, "user", principal.ID, "error", err)
		return nil, huma.Error500InternalServerError("audit trail unavailable")
	}

	out := &auditTrailOutput{}
	out.Body.CorrelationID = in.CorrelationID
	out.Body.Entries = entries
	return out, nil
}

func (s *Server) handleAuditList(ctx context.Context, in *auditListInput) (*auditListOutput, error) {
	principal, err := s.requirePermission(ctx, policy.PermissionAuditLogs)
	if err != nil {
		return nil, err
	}

	entries, err := s.audit.EntriesSince(ctx, in.Since)
	if err != nil {
		s.log.Error("audit read failed", "user", principal.ID, "error", err)
		return nil, huma.Error500InternalServerError("audit trail unavailable")
	}

	out := &auditListOutput{}
	out.Body.Entries = entries
	return out, nil
}

func (s *Server) requirePermission(ctx context.Context, perm string) (types.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return types.Principal{}, huma.Error401Unauthorized("authentication required")
	}
	if !s.matrix.Permitted(policy.Role(p.Role), perm) {
		return types.Principal{}, huma.Error403Forbidden("role " + p.Role + " may not access " + perm)
	}
	return p, nil
}
