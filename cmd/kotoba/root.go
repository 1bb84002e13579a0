package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	app "github.com/kotoba/kotoba-server/internal/app"
	config "github.com/kotoba/kotoba-server/internal/config"
	graph "github.com/kotoba/kotoba-server/internal/graph"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kotoba",
		Short:         "Kotoba GraphQL server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSchemaCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL server",
		Long: "Run the HTTP GraphQL server.\n\n" +
			"Every flag can also be set in the config file or through an environment\n" +
			"variable named " + config.EnvPrefix + "_<KEY>, e.g. " + config.EnvPrefix + "_SERVER_ADDR.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the GraphQL schema in SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sch, err := graph.NewSchema(graph.DefaultResolvers())
			if err != nil {
				return errors.Wrap(err, "building schema")
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), sch.SDL())
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", app.DefaultName, app.Version)
			return err
		},
	}
}
