package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"adekit/internal/service"
)

func (a *app) tokenCmd() *cobra.Command {
	var (
		tenant, subject string
		ttl             time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a gateway bearer token with the configured jwt.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant %q: %w", tenant, err)
			}
			tok, err := service.NewAuthService(&a.cfg.JWT).Mint(service.TokenInput{
				TenantID: tenantID,
				Subject:  subject,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return err
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (uuid)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.ttl)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
