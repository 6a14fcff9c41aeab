package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/devfolio-sync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented default config file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runConfigInit,
	}

	cmd.Flags().String("base-url", "", "remote store base URL to write into [remote]")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	baseURL, _ := cmd.Flags().GetString("base-url")
	force, _ := cmd.Flags().GetBool("force")

	path := config.ResolveConfigPath(cc.Env, cc.Overrides)

	if err := config.WriteDefault(path, baseURL, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		return err
	}

	cc.Statusf("Wrote %s\n", path)

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(os.Stdout, cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, os.Stdout)
}
