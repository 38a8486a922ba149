package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-agent-go"
)

func newModelsCmd(a *app) *cobra.Command {
	var capabilitiesFile string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List Claude models with limits and pricing",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := llmprovider.GetCapabilityRegistry()
			if capabilitiesFile != "" {
				registry = llmprovider.NewCapabilityRegistry()
				if err := registry.LoadCapabilitiesFromFile(capabilitiesFile); err != nil {
					return err
				}
			}

			provider := llmprovider.ProviderAnthropic.String()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tALIASES\tCONTEXT\tMAX OUTPUT\tINPUT $/M\tOUTPUT $/M\tCACHE READ $/M\tCACHE WRITE $/M")
			for _, name := range registry.ListModels(provider) {
				m, err := registry.GetModelCapability(provider, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
					name, strings.Join(m.Aliases, ","), m.ContextWindow, m.MaxOutputTokens,
					m.Pricing.InputPer1M, m.Pricing.OutputPer1M, m.Pricing.CacheReadPer1M, m.Pricing.CacheWritePer1M)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&capabilitiesFile, "capabilities", "", "capabilities YAML file overriding the embedded catalog")

	return cmd
}
