package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLimitCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Manage rate limit rules and their live tokens",
	}

	var (
		span      time.Duration
		limit     int64
		overwrite bool
	)
	add := &cobra.Command{
		Use:   "add <service> <subject>",
		Short: "Add a rule granting <limit> uses per <span>",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := cli.resolveService(args[0])
			if err != nil {
				return err
			}
			limits, err := cli.app.RateLimits()
			if err != nil {
				return err
			}
			rule, err := limits.AddRule(c.Context(), svc, args[1], span, limit, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "rule %s added\n", rule.ID)
			return nil
		},
	}
	add.Flags().DurationVar(&span, "span", time.Minute, "window length")
	add.Flags().Int64Var(&limit, "limit", 1, "uses allowed per window")
	add.Flags().BoolVar(&overwrite, "overwrite", false, "shadow inherited rules")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <rule-id>",
		Short: "Remove a rule and its live tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := cli.materializeStored(c.Context()); err != nil {
				return err
			}
			limits, err := cli.app.RateLimits()
			if err != nil {
				return err
			}
			removed, err := limits.RemoveRule(c.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(c.OutOrStdout(), "no such rule")
				return nil
			}
			fmt.Fprintln(c.OutOrStdout(), "removed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls [service]",
		Short: "List rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			if err := cli.materializeStored(ctx); err != nil {
				return err
			}
			limits, err := cli.app.RateLimits()
			if err != nil {
				return err
			}

			rules, err := limits.GetAllRules(ctx)
			if err != nil {
				return err
			}
			for _, rule := range rules {
				if len(args) == 1 && rule.Service.QualifiedName() != args[0] {
					continue
				}
				marker := ""
				if rule.Overwrite {
					marker = "\toverwrite"
				}
				fmt.Fprintf(c.OutOrStdout(), "%s\t%s\t%s\t%d per %s%s\n",
					rule.ID, rule.Service.QualifiedName(), rule.Subject,
					rule.Limit, rule.TimeSpan, marker)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <rule-id>",
		Short: "Drop every live token under a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			limits, err := cli.app.RateLimits()
			if err != nil {
				return err
			}
			if err := limits.ClearTokens(c.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), "reset")
			return nil
		},
	})

	return cmd
}
