package cli

import (
	"errors"
	"fmt"
	"time"

	"khodkquiz/internal/config"
	transport "khodkquiz/internal/transport/http"

	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token signed with the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			auth := newAuthenticator(cfg)
			token, err := auth.IssueToken(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name shown on the leaderboard")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAuthenticator(cfg config.Config) *transport.Authenticator {
	return transport.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
}
