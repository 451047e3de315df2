package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newGenerationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generation",
		Short: "Show the active index generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.searchClient()
			if err != nil {
				return err
			}
			gen, err := client.Generation(cmd.Context())
			if err != nil {
				return err
			}
			if gen.ID == 0 {
				cmd.Println("No generation is active.")
				return nil
			}
			cmd.Printf("Generation:     %d (%s)\n", gen.ID, gen.State)
			cmd.Printf("Documents:      %d\n", gen.Documents)
			cmd.Printf("Terms:          %d\n", gen.Terms)
			cmd.Printf("Avg doc length: %.2f\n", gen.AvgDocLength)
			cmd.Printf("Built at:       %s\n", time.UnixMilli(gen.BuiltAt).UTC().Format(time.RFC3339))
			cmd.Printf("Active queries: %d\n", gen.ActiveQueries)
			return nil
		},
	}
}
