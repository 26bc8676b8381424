package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KOMKZ/go-accessctl-framework/di"
	"github.com/KOMKZ/go-accessctl-framework/service"
)

type cliContext struct {
	app *di.App
}

func newRootCmd() *cobra.Command {
	var configPath string
	cli := &cliContext{}

	root := &cobra.Command{
		Use:           "acctl",
		Short:         "Manage chat-bot access control: services, permissions, rate limits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := di.NewApp(configPath)
			if err != nil {
				return err
			}
			cli.app = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cli.app == nil {
				return nil
			}
			return cli.app.Shutdown(context.Background())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (yaml)")

	root.AddCommand(newPermissionCmd(cli))
	root.AddCommand(newLimitCmd(cli))
	root.AddCommand(newServiceCmd(cli))
	root.AddCommand(newSubjectCmd(cli))
	return root
}

// resolveService materializes the named node. The CLI runs outside
// the bot process, so the tree starts empty and nodes are created on
// demand from the qualified name.
func (c *cliContext) resolveService(qualifiedName string) (*service.Service, error) {
	registry := c.app.Registry()
	if qualifiedName == service.RootName {
		return registry.Root(), nil
	}

	segs := strings.Split(qualifiedName, ".")
	node, err := registry.GetOrCreatePluginService(segs[0])
	if err != nil {
		return nil, err
	}
	for _, seg := range segs[1:] {
		child := node.GetChild(seg)
		if child == nil {
			child, err = node.CreateSubservice(seg)
			if err != nil {
				return nil, err
			}
		}
		node = child
	}
	return node, nil
}

// materializeStored rebuilds tree nodes for every service name found
// in storage so list commands can resolve them
func (c *cliContext) materializeStored(ctx context.Context) error {
	perms, err := c.app.Permissions()
	if err != nil {
		return err
	}
	limits, err := c.app.RateLimits()
	if err != nil {
		return err
	}

	names, err := perms.StoredServiceNames(ctx)
	if err != nil {
		return err
	}
	ruleNames, err := limits.StoredServiceNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range append(names, ruleNames...) {
		if _, err := c.resolveService(name); err != nil {
			return err
		}
	}
	return nil
}
