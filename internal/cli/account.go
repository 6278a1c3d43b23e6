package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tracing-quiz-service/internal/account"
	"tracing-quiz-service/internal/config"
	"tracing-quiz-service/internal/infra/memory"
	pgstore "tracing-quiz-service/internal/infra/postgres"
)

// NewAccountCmd serves the account API online devices sync against.
func NewAccountCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "account-api",
		Short: "Start the account API backing online mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Account.JWTSecret == "" {
				return errors.New("account.jwt_secret is required")
			}

			var store account.Store = memory.NewAccountStore()
			if cfg.Postgres.URL != "" {
				if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
					return err
				}
				db := openBun(cfg.Postgres.URL)
				defer db.Close()
				store = pgstore.NewAccountStore(db)
			} else {
				logger.Warn("postgres.url not set; accounts live in memory only")
			}

			issuer := account.NewIssuer(cfg.Account.JWTSecret, config.TTLDuration(cfg.Account.TokenTTL, 0))
			handler := account.NewHandler(store, issuer, logger.WithPrefix("account"))

			finalPort := *port
			if finalPort == "" {
				finalPort = cfg.Account.Port
			}
			logger.Info("starting account api", "port", finalPort, "postgres", cfg.Postgres.URL != "")
			return serve(cmd.Context(), finalPort, handler.Routes(), logger)
		},
	}
}

// NewTokenCmd prints a bearer token for a user, for onboarding devices by hand.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an account API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Account.JWTSecret == "" {
				return errors.New("account.jwt_secret is required")
			}
			token, err := account.NewIssuer(cfg.Account.JWTSecret, config.TTLDuration(cfg.Account.TokenTTL, 0)).Issue(userID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
