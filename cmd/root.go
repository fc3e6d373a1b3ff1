package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "happyfinder",
		Short: "Queue-driven pipeline that discovers restaurants and records their happy-hour menus",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newRequeueCmd())
	root.AddCommand(newMigrateCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
