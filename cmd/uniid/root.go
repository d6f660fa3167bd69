package main

import (
	"github.com/spf13/cobra"

	"uniid/internal/platform/config"
)

func newRootCmd() *cobra.Command {
	var cfg config.Server
	root := &cobra.Command{
		Use:   "uniid",
		Short: "University identity lifecycle service",
		Long: `uniid keeps the identity records of students, PhD candidates, faculty
and staff, enforces their lifecycle and records a field-level audit trail
for every accepted edit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg = config.FromEnv()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
		},
	}
	root.AddCommand(newServeCmd(&cfg), newMigrateCmd(&cfg))
	return root
}
