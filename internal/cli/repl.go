package cli

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
)

func newReplCmd(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Query interactively",
		Long:  `Reads one query per line at the "search> " prompt. Type exit to quit.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.searchClient()
			if err != nil {
				return err
			}
			cmd.Println("Type a query to search, or 'exit' to quit.")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				cmd.Print("search> ")
				if !scanner.Scan() {
					cmd.Println()
					return scanner.Err()
				}
				query := strings.TrimSpace(scanner.Text())
				switch query {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				resp, err := client.Search(cmd.Context(), query, opts.limit)
				if err != nil {
					cmd.PrintErrln("error:", err)
					continue
				}
				if err := printResults(cmd, a.opts.logDir, resp, opts); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&opts.showRecord, "show-record", true, "print the log line each result points to")
	return cmd
}
