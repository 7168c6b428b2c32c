package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newFsckCommand(configPath *string) *cobra.Command {
	var users []string

	cmd := &cobra.Command{
		Use:   "fsck --user <id> [--user <id>...]",
		Short: "Check that each user's folder tree and snippets agree",
		Long: "fsck walks every given user's namespace tree and compares it with their " +
			"snippet records. It changes nothing. The exit status is non-zero when any " +
			"inconsistency is found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(users) == 0 {
				return errors.New("at least one --user is required")
			}

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			total := 0
			for _, id := range users {
				report, err := a.engine.Namespaces.Verify(cmd.Context(), id)
				if err != nil {
					return errors.Wrapf(err, "verify user %s", id)
				}
				if len(report) == 0 {
					fmt.Fprintf(out, "%s: ok\n", id)
					continue
				}
				for _, issue := range report {
					fmt.Fprintf(out, "%s: %s node=%s snippet=%s: %s\n",
						id, issue.Kind, orDash(issue.NodeID), orDash(issue.SnippetID), issue.Detail)
				}
				total += len(report)
			}
			if total > 0 {
				return errors.Errorf("%d inconsistencies found", total)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&users, "user", nil, "user id to check (repeatable)")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
