package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/internal/retrieval"
)

// timeRound trims durations in human output.
const timeRound = time.Millisecond

var (
	queryTopK      int
	queryOutput    string
	querySkipCache bool
)

var queryCmd = &cobra.Command{
	Use:   "query QUESTION",
	Short: "Ask a question over the ingested documents",
	Long: `Answer a natural-language question using hybrid retrieval
(vector similarity, graph traversal, keyword search) and LLM synthesis.

Examples:
  normgraph query "What does APP.4.4.A19 require?"
  normgraph query "Which ISO 27001 controls map to BSI network segmentation?" --top-k 5
  normgraph query "gaps in our NIST coverage" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "Number of results to retrieve (default from config)")
	queryCmd.Flags().StringVar(&queryOutput, "output", "text", "Output format (text, json)")
	queryCmd.Flags().BoolVar(&querySkipCache, "no-cache", false, "Bypass the response cache")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	orchestrator, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	resp, err := orchestrator.Query(ctx, args[0], retrieval.QueryOptions{
		TopK:      queryTopK,
		SkipCache: querySkipCache,
	})
	if err != nil {
		return err
	}

	if queryOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Println()
		fmt.Println(color.CyanString("Sources:"))
		for _, c := range resp.Citations {
			if c.Section != "" {
				fmt.Printf("  - %s (%s)\n", c.Source, c.Section)
			} else {
				fmt.Printf("  - %s\n", c.Source)
			}
		}
	}
	if flagVerbose {
		fmt.Printf("\nintent=%s confidence=%.2f results=%d cached=%t in %s\n",
			resp.Intent, resp.Confidence, resp.Results, resp.Cached,
			resp.Duration.Round(timeRound))
	}
	return nil
}
