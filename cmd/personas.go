package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"speaktoheaven/config"
)

func newPersonasCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "personas",
		Short: "Validate and list the persona catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				file = cfg.PersonasFile
			}
			catalog, err := config.LoadCatalog(file)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTOR")
			for _, p := range catalog.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Descriptor)
			}
			return w.Flush()
		},
	}
	c.Flags().StringVar(&file, "file", "", "persona YAML file (defaults to PERSONAS_FILE or the built-in catalog)")
	return c
}
