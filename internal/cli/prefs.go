package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/internal/preference"
)

func (a *app) prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change your preferences",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored preferences",
		Args:  cobra.NoArgs,
		RunE: a.withStore(false, func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			p, ok, err := a.prefs.Get(cmd.Context(), a.user.ID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No preferences saved yet.")
				return nil
			}
			return printPreference(cmd.OutOrStdout(), format, p)
		}),
	}
	show.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json, yaml)")

	var (
		dark bool
		name string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the theme or display name",
		Args:  cobra.NoArgs,
		RunE: a.withStore(false, func(cmd *cobra.Command, _ []string) error {
			var patch preference.Patch
			if cmd.Flags().Changed("dark") {
				patch.DarkMode = &dark
			}
			if cmd.Flags().Changed("name") {
				n := strings.TrimSpace(name)
				patch.UserName = &n
			}
			if patch.DarkMode == nil && patch.UserName == nil {
				return errors.New("nothing to change: pass --dark or --name")
			}
			p, err := a.prefs.Upsert(cmd.Context(), a.user.ID, patch)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Failed to save preferences")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Preferences saved")
			return printPreference(cmd.OutOrStdout(), formatTable, p)
		}),
	}
	set.Flags().BoolVar(&dark, "dark", false, "use the dark theme (--dark=false for light)")
	set.Flags().StringVar(&name, "name", "", "display name (empty clears it)")

	cmd.AddCommand(show, set)
	return cmd
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: a.withStore(false, func(cmd *cobra.Command, _ []string) error {
			u, ok := a.sess.User()
			if !ok {
				return a.sess.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Name, u.ID)
			return nil
		}),
	}
}
