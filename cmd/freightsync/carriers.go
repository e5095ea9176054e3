package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/freightsync/pkg/logger"
)

func newCarriersCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "carriers",
		Short: "List available carrier adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			adapters, _, err := buildAdapters(cfg, logger.Get())
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(adapters))
			for id := range adapters {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available carriers:")
			for _, id := range ids {
				d := adapters[id].Descriptor()
				types := make([]string, len(d.SupportedTypes))
				for i, t := range d.SupportedTypes {
					types[i] = string(t)
				}
				fmt.Fprintf(out, "  - %-10s %-28s [%s] %d req/%s\n",
					d.CarrierID, d.Name, strings.Join(types, ", "), d.RateLimit.MaxRequests, d.RateLimit.Window)
			}
			return nil
		},
	}
}
