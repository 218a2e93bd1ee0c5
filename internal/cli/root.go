// Package cli implements authctl, the operator tool for managing Spendwise
// users and their registered devices directly against the user store.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spendwise/backend/internal/bootstrap"
	"github.com/spendwise/backend/internal/config"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
	"github.com/spf13/cobra"
)

// Opener connects to the user store and returns the admin service together
// with a function releasing everything it opened.
type Opener func(ctx context.Context) (*services.UserAdmin, func() error, error)

// OpenFromEnv opens the store the server would use, configured the same way.
func OpenFromEnv(ctx context.Context) (*services.UserAdmin, func() error, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg := config.Load()
	logger.Init(cfg.Env, cfg.Log.Level)
	utils.ConfigureEncryption(cfg.Security.EncryptionSecret)

	store, err := bootstrap.OpenUserStore(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening user store: %w", err)
	}
	audit := services.NewAuditService(store.DB)

	closeAll := func() error {
		audit.Close()
		logger.Sync()
		return store.Close()
	}
	return services.NewUserAdmin(store.Users, audit), closeAll, nil
}

type app struct {
	open    Opener
	admin   *services.UserAdmin
	closeFn func() error
	jsonOut bool
	out     io.Writer
}

// NewRootCmd builds the authctl command tree on top of open.
func NewRootCmd(open Opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Manage Spendwise users and devices",
		Long: `authctl talks to the Spendwise user store directly, using the same
environment configuration as the API server.

  authctl users list
  authctl users create alice --password-stdin
  authctl users reset-password alice --password-stdin
  authctl devices list alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			admin, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			a.admin = admin
			a.closeFn = closeFn
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeFn == nil {
				return nil
			}
			return a.closeFn()
		},
	}
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output as JSON")

	root.AddCommand(a.usersCmd(), a.devicesCmd())
	return root
}

// Execute runs authctl with process arguments.
func Execute(ctx context.Context, stderr io.Writer) error {
	if err := NewRootCmd(OpenFromEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	return nil
}
