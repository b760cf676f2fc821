package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mordilloSan/sharingcart/cmd"
	"github.com/mordilloSan/sharingcart/internal/version"
)

func renderCmd() *cobra.Command {
	var userID int64
	c := &cobra.Command{
		Use:   "render",
		Short: "Print a user's sharing cart as HTML",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			return cmd.RenderOnce(c.Context(), daemonConfig(), userID, c.OutOrStdout())
		},
	}
	c.Flags().Int64Var(&userID, "user", 0, "User id whose cart is rendered")
	return c
}

func grantCmd() *cobra.Command {
	var (
		userID int64
		revoke bool
	)
	c := &cobra.Command{
		Use:     "grant CAPABILITY...",
		Short:   "Grant (or with --revoke, remove) capabilities for a user",
		Example: "  sharingcart grant --user 42 moodle/restore:restorecourse moodle/restore:restoreactivity",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			return cmd.UpdateGrants(c.Context(), viper.GetString("db_path"), userID, revoke, args)
		},
	}
	c.Flags().Int64Var(&userID, "user", 0, "User id")
	c.Flags().BoolVar(&revoke, "revoke", false, "Remove the capabilities instead of granting them")
	return c
}

func versionCmd() *cobra.Command {
	var short bool
	c := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(c.OutOrStdout(), version.Get().Version)
				return
			}
			fmt.Fprintln(c.OutOrStdout(), version.String())
		},
	}
	c.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return c
}
