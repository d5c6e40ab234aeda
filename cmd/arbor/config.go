package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/arbor"
	"github.com/KilimcininKorOglu/arbor/internal/config"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with store configuration files",
	}
	cmd.AddCommand(c.configValidateCmd(), c.configInitCmd(), c.configShowCmd())
	return cmd
}

func (c *cli) configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if errs := config.ValidateConfig(cfg); len(errs) > 0 {
				fmt.Fprintln(c.stderr, "Configuration errors:")
				for _, e := range errs {
					fmt.Fprintf(c.stderr, "  - %s\n", e)
				}
				return errors.New("configuration is invalid")
			}
			fmt.Fprintln(c.stdout, "Configuration is valid")
			return nil
		},
	}
}

func (c *cli) configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Print the default configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printConfig(config.DefaultConfig())
		},
	}
}

func (c *cli) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <dir>",
		Short: "Print the configuration of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(filepath.Join(args[0], arbor.ConfigFileName))
			if err != nil {
				return err
			}
			return c.printConfig(cfg)
		},
	}
}

func (c *cli) printConfig(cfg *config.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(data)
	return err
}
