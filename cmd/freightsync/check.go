package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Health check every stored connection once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.monitor.CheckNow(ctx)

			conns, err := a.engine.GetActiveConnections(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range conns {
				h := a.monitor.Health(c.ID)
				last := ""
				if h.LastCheck != nil && h.LastCheck.Error != "" {
					last = " " + h.LastCheck.Error
				}
				fmt.Fprintf(out, "%s  %-8s %-7s uptime %.1f%%  avg %.0fms%s\n",
					c.ID, c.CarrierID, h.Status, h.Uptime, h.AvgResponseTimeMs, last)
			}
			fmt.Fprintf(out, "%d connections checked\n", len(conns))
			return nil
		},
	}
}
