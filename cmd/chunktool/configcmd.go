package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the chunktool configuration",
	}
	cmd.AddCommand(a.configShowCmd(), a.configInitCmd())
	return cmd
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// configInitCmd writes the effective configuration, so flags given next to
// it end up in the file.
func (a *app) configInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				target = config.DefaultPath()
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", target)
			}

			var err error
			if path == "" {
				err = a.cfg.Save()
			} else {
				err = a.cfg.SaveTo(target)
			}
			if err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			a.log.Info("config written", zap.String("path", target))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&path, "path", "o", "", "file to write (default: the user config file)")
	f.BoolVar(&force, "force", false, "replace an existing file")
	return cmd
}
