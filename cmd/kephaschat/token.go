package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/kephaschat/internal/auth"
	"github.com/luciancaetano/kephaschat/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		secret   = config.FromEnv().JWTSecret
		username string
		userID   string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development auth token",
		Long: `Sign a token for the auth frame with the relay's JWT secret.

Production tokens are issued by the login service; this command is for
local testing.

Examples:
  kephaschat token --user alice
  kephaschat token --user bob --user-id 42 --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("jwt secret must be set (--jwt-secret or KEPHASCHAT_JWT_SECRET)")
			}
			if username == "" {
				return errors.New("--user is required")
			}
			if userID == "" {
				userID = username
			}

			token, err := auth.NewJWTAuthenticator(secret, nil).Issue(username, userID, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "jwt-secret", secret, "HS256 signing secret")
	cmd.Flags().StringVarP(&username, "user", "u", "", "Username the token is issued for")
	cmd.Flags().StringVar(&userID, "user-id", "", "User id claim (defaults to the username)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
