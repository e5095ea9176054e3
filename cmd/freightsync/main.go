package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Register the built-in carrier adapters
	_ "github.com/ajitpratap0/freightsync/pkg/carrier/adapters/cmacgm"
	_ "github.com/ajitpratap0/freightsync/pkg/carrier/adapters/hapag"
	_ "github.com/ajitpratap0/freightsync/pkg/carrier/adapters/maersk"
	_ "github.com/ajitpratap0/freightsync/pkg/carrier/adapters/msc"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "freightsync",
		Short: "freightsync - carrier integration engine",
		Long: `freightsync connects to ocean carriers over API, EDI, email, web and manual
uploads, and normalizes their shipment data into canonical container records.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to freightsync.yaml (default: search ., ./config, /etc/freightsync)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "freightsync v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newCarriersCmd(&configFile))
	root.AddCommand(newFetchCmd(&configFile))
	root.AddCommand(newCheckCmd(&configFile))
	return root
}
