package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect registered devices",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <user>",
		Short: "List the devices registered for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.admin.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, user.Devices)
			}
			deviceTable(a.out, user.Devices)
			return nil
		},
	})
	return cmd
}
