package cli

import (
	"fmt"
	"time"

	"github.com/kmassidik/engagement/internal/common/middleware"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a JWT for the rating run endpoint",
	Long: `Sign a bearer token with JWT_SECRET. The subject is recorded as the
requester of any run triggered with the token.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var tokenFlags struct {
	ttl time.Duration
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required to issue tokens")
	}
	if tokenFlags.ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	token, err := middleware.GenerateToken(args[0], cfg.JWT.Secret, tokenFlags.ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
