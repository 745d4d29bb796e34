package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"yashubustudio/orgtrends/classify"
	"yashubustudio/orgtrends/internal/config"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect settings files",
	}
	cmd.AddCommand(newConfigInitCommand(c), newConfigShowCommand(c))
	return cmd
}

func newConfigInitCommand(c *cli) *cobra.Command {
	var (
		force     bool
		gazetteer string
	)
	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a settings file with every default filled in",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			s := config.Default()
			if gazetteer != "" {
				created, err := classify.EnsureEntriesFile(gazetteer, classify.DefaultEntries())
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(c.stdout, "wrote %s\n", gazetteer)
				}
				s.Gazetteer.Path = gazetteer
			}
			if err := config.Save(path, s); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&gazetteer, "gazetteer", "", "Also write the built-in gazetteer to this file and point the settings at it")
	return cmd
}

func newConfigShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings without credentials",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if c.configUsed != "" {
				fmt.Fprintf(c.stdout, "# loaded from %s\n", c.configUsed)
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(c.settings); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
