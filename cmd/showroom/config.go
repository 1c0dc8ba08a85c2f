package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var printCfg bool
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			cfg, found, err := config.LoadOrDefault(path)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if found == "" {
				found = "defaults"
			}
			fmt.Fprintf(out, "Configuration OK (%s)\n", found)
			for _, p := range cfg.Providers {
				fmt.Fprintf(out, "  provider %s: %s\n", p.Name, p.OpenAI.Model)
			}
			fmt.Fprintf(out, "  session store: %s\n", cfg.Session.Driver)

			if printCfg {
				raw, err := cfg.Redacted()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s", raw)
			}
			return nil
		},
	}
	check.Flags().BoolVar(&printCfg, "print", false, "Print the effective configuration with secrets redacted")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file that would be loaded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			found, err := config.Find(explicit)
			if errors.Is(err, config.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no configuration file found, defaults apply")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), found)
			return nil
		},
	}

	cmd.AddCommand(check, path)
	return cmd
}
