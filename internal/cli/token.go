package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"statsidx.io/statsidx/internal/api/middleware"
	"statsidx.io/statsidx/internal/app/modules"
)

// tokenResponse is the structured form of admin-token.
type tokenResponse struct {
	Token     string    `json:"token" yaml:"token"`
	Subject   string    `json:"subject" yaml:"subject"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func newAdminTokenCommand(rt *session) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rt.config()
			if err != nil {
				return err
			}
			jwtCfg := modules.AdminJWTConfig(cfg.Security)
			if !jwtCfg.Enabled() {
				return errors.New("security.admin_jwt_key is not configured")
			}
			if ttl > 0 {
				jwtCfg.ExpiresIn = ttl
			}
			token, expiresAt, err := middleware.GenerateToken(jwtCfg, subject, roles)
			if err != nil {
				return err
			}
			p := newPrinter(cmd, rt.opts.Output)
			res := tokenResponse{Token: token, Subject: subject, ExpiresAt: expiresAt}
			return p.emit(res, func() {
				p.line("%s", token)
				p.muted("subject=%s expires=%s", subject, expiresAt.UTC().Format(time.RFC3339))
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "statsctl", "token subject recorded in audit logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: security.admin_token_ttl)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{middleware.RoleAdmin}, "roles granted by the token")
	return cmd
}
