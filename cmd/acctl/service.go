package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KOMKZ/go-accessctl-framework/service"
	"github.com/KOMKZ/go-accessctl-framework/subject"
)

func newServiceCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Inspect the service tree",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "Print the tree known to storage",
		RunE: func(c *cobra.Command, args []string) error {
			if err := cli.materializeStored(c.Context()); err != nil {
				return err
			}
			printTree(c, cli.app.Registry().Root(), 0)
			return nil
		},
	})

	return cmd
}

func printTree(c *cobra.Command, node *service.Service, depth int) {
	fmt.Fprintf(c.OutOrStdout(), "%s%s\n", strings.Repeat("  ", depth), node.Name())
	for _, child := range node.Children() {
		printTree(c, child, depth+1)
	}
}

func newSubjectCmd(cli *cliContext) *cobra.Command {
	var (
		botType  string
		platform string
		level    string
		userID   string
		groupID  string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Show the subjects a session resolves to, most specific first",
		RunE: func(c *cobra.Command, args []string) error {
			sess := &subject.Session{
				BotType:  botType,
				Platform: platform,
				UserID:   userID,
				GroupID:  groupID,
				Role:     role,
			}
			switch level {
			case "group":
				sess.Level = subject.LevelGroup
			case "channel":
				sess.Level = subject.LevelChannel
			default:
				sess.Level = subject.LevelPrivate
			}

			chain := subject.NewChain()
			chain.Add(subject.NewSessionExtractor(nil))
			chain.Add(subject.GroupRoleExtractor)
			for _, s := range chain.Extract(sess) {
				fmt.Fprintln(c.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&botType, "bot-type", "OneBot V11", "bot adapter type")
	cmd.Flags().StringVar(&platform, "platform", "qq", "platform name")
	cmd.Flags().StringVar(&level, "level", "private", "session level: private|group|channel")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&groupID, "group", "", "group id")
	cmd.Flags().StringVar(&role, "role", "", "group role: owner|admin|member")
	cmd.MarkFlagRequired("user")
	return cmd
}
