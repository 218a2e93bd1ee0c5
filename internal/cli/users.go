package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/services"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spf13/cobra"
)

const minPasswordLength = 8

var cliMeta = services.RequestMeta{IP: "authctl"}

type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "Password (visible in shell history, prefer --password-stdin)")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "Read the password from the first line of stdin")
}

func (p *passwordFlags) resolve(in io.Reader) (string, error) {
	password := p.password
	if p.stdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and manage users",
	}
	cmd.AddCommand(a.usersListCmd(), a.usersCreateCmd(), a.usersResetPasswordCmd())
	return cmd
}

func (a *app) usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.admin.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}
			if a.jsonOut {
				return writeJSON(a.out, users)
			}
			userTable(a.out, users)
			return nil
		},
	}
}

func (a *app) usersCreateCmd() *cobra.Command {
	var (
		role string
		pw   passwordFlags
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			user, err := a.admin.Create(cmd.Context(), args[0], password, models.UserRole(role), nil, cliMeta)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			logger.Info("authctl_user_created", map[string]interface{}{"user_id": user.ID.String()})
			if a.jsonOut {
				return writeJSON(a.out, user)
			}
			fmt.Fprintf(a.out, "Created %s %q (%s)\n", user.Role, user.Name, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.UserRoleUser), "Role: user or superadmin")
	pw.register(cmd)
	return cmd
}

func (a *app) usersResetPasswordCmd() *cobra.Command {
	var pw passwordFlags
	cmd := &cobra.Command{
		Use:   "reset-password <name>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			user, err := a.admin.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.admin.ResetPassword(cmd.Context(), user.ID, password, nil, cliMeta); err != nil {
				return fmt.Errorf("resetting password: %w", err)
			}
			fmt.Fprintf(a.out, "Password updated for %q\n", user.Name)
			return nil
		},
	}
	pw.register(cmd)
	return cmd
}
