package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

type searchOptions struct {
	limit      int
	json       bool
	showRecord bool
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed log lines",
		Long: `Runs a boolean query against the active generation. Words are ANDed;
OR, NOT (or a leading -), parentheses, "quoted phrases" and field:word
terms are supported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.searchClient()
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), args[0], opts.limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return printResults(cmd, a.opts.logDir, resp, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&opts.showRecord, "show-record", false, "print the log line each result points to")
	return cmd
}

func printResults(cmd *cobra.Command, logDir string, resp proto.SearchResponse, opts searchOptions) error {
	if opts.json {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("%d of %d hits (generation %d):\n", len(resp.Results), resp.TotalHits, resp.Generation)
	for i, r := range resp.Results {
		cmd.Printf("  [%d] %s (%.4f)", i+1, r.DocID, r.Score)
		if len(r.MatchedTerms) > 0 {
			cmd.Printf("  %s", strings.Join(r.MatchedTerms, ", "))
		}
		cmd.Println()
		if opts.showRecord {
			cmd.Printf("      %s\n", readRecord(logDir, r.DocID))
		}
	}
	return nil
}

func readRecord(logDir, id string) string {
	ptr, err := source.ParsePointer(id)
	if err != nil {
		return "(not a log record)"
	}
	line, err := source.ReadLine(ptr.Resolve(logDir), ptr.Offset)
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}
	return line
}
