package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPermissionCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Manage explicit allow/deny decisions",
	}

	set := func(allow bool) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			svc, err := cli.resolveService(args[0])
			if err != nil {
				return err
			}
			perms, err := cli.app.Permissions()
			if err != nil {
				return err
			}
			changed, err := perms.SetPermission(c.Context(), svc, args[1], allow)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(c.OutOrStdout(), "unchanged")
				return nil
			}
			fmt.Fprintf(c.OutOrStdout(), "%s %s for %s\n", verdict(allow), svc.QualifiedName(), args[1])
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "allow <service> <subject>",
		Short: "Allow a subject on a service subtree",
		Args:  cobra.ExactArgs(2),
		RunE:  set(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "deny <service> <subject>",
		Short: "Deny a subject on a service subtree",
		Args:  cobra.ExactArgs(2),
		RunE:  set(false),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <service> <subject>",
		Short: "Remove a stored decision, reverting to inherited/default",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := cli.resolveService(args[0])
			if err != nil {
				return err
			}
			perms, err := cli.app.Permissions()
			if err != nil {
				return err
			}
			removed, err := perms.RemovePermission(c.Context(), svc, args[1])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(c.OutOrStdout(), "nothing stored")
				return nil
			}
			fmt.Fprintln(c.OutOrStdout(), "removed")
			return nil
		},
	})

	var subjectFilter string
	ls := &cobra.Command{
		Use:   "ls [service]",
		Short: "List stored decisions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			if err := cli.materializeStored(ctx); err != nil {
				return err
			}
			perms, err := cli.app.Permissions()
			if err != nil {
				return err
			}

			var rows []permissionRow
			switch {
			case len(args) == 1:
				svc, err := cli.resolveService(args[0])
				if err != nil {
					return err
				}
				list, err := perms.GetPermissions(ctx, svc)
				if err != nil {
					return err
				}
				for _, p := range list {
					rows = append(rows, permissionRow{p.Service.QualifiedName(), p.Subject, p.Allow})
				}
			case subjectFilter != "":
				list, err := perms.GetAllPermissionsBySubjects(ctx, subjectFilter)
				if err != nil {
					return err
				}
				for _, p := range list {
					rows = append(rows, permissionRow{p.Service.QualifiedName(), p.Subject, p.Allow})
				}
			default:
				list, err := perms.GetAllPermissions(ctx)
				if err != nil {
					return err
				}
				for _, p := range list {
					rows = append(rows, permissionRow{p.Service.QualifiedName(), p.Subject, p.Allow})
				}
			}

			for _, row := range rows {
				fmt.Fprintf(c.OutOrStdout(), "%s\t%s\t%s\n", row.service, row.subject, verdict(row.allow))
			}
			return nil
		},
	}
	ls.Flags().StringVar(&subjectFilter, "subject", "", "filter by subject")
	cmd.AddCommand(ls)

	return cmd
}

type permissionRow struct {
	service string
	subject string
	allow   bool
}

func verdict(allow bool) string {
	if allow {
		return "allow"
	}
	return "deny"
}
