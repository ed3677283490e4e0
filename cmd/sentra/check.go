// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra-dev/sentra/internal/config"
	"github.com/sentra-dev/sentra/internal/policy"
)

// newCheckCmd validates configuration without starting the server.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			grants := cfg.Policy.Grants
			if len(grants) == 0 {
				grants = policy.DefaultGrants()
			}
			matrix, err := policy.NewMatrix(grants)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: listen=%s reasoner=%s knowledge=%s logs=%s audit=%s\n",
				cfg.Server.Listen, cfg.Reasoner.Provider,
				cfg.Knowledge.Backend, cfg.Logs.Backend, cfg.Audit.Backend)
			for _, role := range []policy.Role{policy.RoleSales, policy.RoleEngineering, policy.RoleSecurity, policy.RoleAdmin} {
				fmt.Fprintf(out, "role %-12s permissions=%v\n", role, matrix.Permissions(role))
			}
			if len(cfg.Auth.Tokens) == 0 {
				fmt.Fprintln(out, "warning: no auth tokens configured")
			}
			return nil
		},
	}
}
