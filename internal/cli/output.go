package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spendwise/backend/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userTable(out io.Writer, users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tROLE\tCREATED\tID")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name, u.Role, relativeTime(u.CreatedAt), u.ID)
	}
	w.Flush()
}

func deviceTable(out io.Writer, devices []models.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices registered.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERIFIED\tLAST LOGIN\tREGISTERED\tID")
	for _, d := range devices {
		name := d.DeviceName
		if name == "" {
			name = "-"
		}
		verified := "no"
		if d.TwoFactorVerified {
			verified = "yes"
		}
		lastLogin := "never"
		if d.LastLogin != nil {
			lastLogin = relativeTime(*d.LastLogin)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, verified, lastLogin, relativeTime(d.CreatedAt), d.DeviceID)
	}
	w.Flush()
}

// relativeTime formats t relative to now, e.g. "2h ago".
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
