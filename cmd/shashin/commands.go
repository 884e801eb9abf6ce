package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hyperjump/shashin/internal/cli"
	"github.com/hyperjump/shashin/internal/models"
)

var (
	serverURL    string
	outputFormat string

	searchLimit     int
	searchThreshold float64

	tokenizeDecode bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index new photos in the library",
	Long: `Embed every library photo that has no stored embedding yet. Interrupting with
Ctrl-C is safe; the next run picks up where this one stopped.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search photos by description",
	Long: `Search photos by natural-language description. The query is all remaining
arguments joined by spaces, so quoting is optional.

Examples:
  shashin search dog on a beach
  shashin search --threshold 0.25 --limit 5 "sunset over mountains"
  shashin search --output json red car`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show indexed and total photo counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Delete the stored embedding of one photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete embeddings of photos no longer in the library",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize <text>",
	Short: "Print the CLIP token ids for text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTokenize,
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, searchCmd, statsCmd, deleteCmd} {
		c.Flags().StringVar(&serverURL, "server", "", "server URL (empty = use direct storage)")
	}
	for _, c := range []*cobra.Command{searchCmd, statsCmd, tokenizeCmd} {
		c.Flags().StringVar(&outputFormat, "output", "text", "output format: text, compact, or json")
	}
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity in [-1, 1] (default from config)")
	tokenizeCmd.Flags().BoolVar(&tokenizeDecode, "decode", false, "also print the decoded text")

	rootCmd.AddCommand(indexCmd, searchCmd, statsCmd, deleteCmd, pruneCmd, tokenizeCmd)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// progressPrinter prints every status change and at most one indexing line per interval.
func progressPrinter(w io.Writer, interval time.Duration) func(models.IndexingProgress) {
	var last models.IndexingStatus
	sometimes := rate.Sometimes{Interval: interval}
	return func(p models.IndexingProgress) {
		if p.CurrentStatus != last {
			last = p.CurrentStatus
			cli.WriteProgress(w, p)
			return
		}
		sometimes.Do(func() { cli.WriteProgress(w, p) })
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	report := progressPrinter(cmd.OutOrStdout(), time.Second)

	var final models.IndexingProgress
	if serverURL != "" {
		p, err := newAPIClient(serverURL).StreamIndex(ctx, report)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		final = p
	} else {
		components, err := initializeComponents(globalConfig, globalLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer components.Close()
		p, err := components.Indexer.Run(ctx, report)
		if err != nil && p.CurrentStatus != models.IndexingCancelled {
			return fmt.Errorf("indexing failed: %w", err)
		}
		final = p
	}
	if final.CurrentStatus == models.IndexingError {
		return fmt.Errorf("indexing failed: %s", final.Error)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	query := &models.SearchQuery{Query: buildSearchQuery(args), Limit: searchLimit}
	if cmd.Flags().Changed("threshold") {
		t := searchThreshold
		query.Threshold = &t
	}

	var response *models.SearchResponse
	if serverURL != "" {
		response, err = newAPIClient(serverURL).Search(cmd.Context(), query)
	} else {
		components, initErr := initializeComponents(globalConfig, globalLogger)
		if initErr != nil {
			return fmt.Errorf("failed to initialize: %w", initErr)
		}
		defer components.Close()
		response, err = components.Engine.Search(cmd.Context(), query)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	var stats models.Stats
	if serverURL != "" {
		stats, err = newAPIClient(serverURL).Stats(cmd.Context())
	} else {
		components, initErr := initializeComponents(globalConfig, globalLogger)
		if initErr != nil {
			return fmt.Errorf("failed to initialize: %w", initErr)
		}
		defer components.Close()
		stats, err = components.Indexer.Stats(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	return cli.WriteStats(cmd.OutOrStdout(), stats, format)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	var err error
	if serverURL != "" {
		err = newAPIClient(serverURL).DeleteItem(cmd.Context(), id)
	} else {
		components, initErr := initializeComponents(globalConfig, globalLogger)
		if initErr != nil {
			return fmt.Errorf("failed to initialize: %w", initErr)
		}
		defer components.Close()
		err = components.Indexer.DeleteItem(cmd.Context(), id)
	}
	if err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Embedding deleted: %s\n", id)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	components, err := initializeComponents(globalConfig, globalLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer components.Close()
	n, err := components.Indexer.Prune(cmd.Context())
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d stale embedding(s)\n", n)
	return nil
}

func runTokenize(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	tok, err := newTokenizer(&globalConfig.Tokenizer)
	if err != nil {
		return err
	}
	text := strings.Join(args, " ")
	ids := tok.Tokenize(text)
	out := cmd.OutOrStdout()
	if format == cli.OutputJSON {
		payload := map[string]interface{}{"text": text, "ids": ids}
		if tokenizeDecode {
			payload["decoded"] = tok.Decode(ids)
		}
		return json.NewEncoder(out).Encode(payload)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	fmt.Fprintln(out, strings.Join(parts, " "))
	if tokenizeDecode {
		fmt.Fprintln(out, tok.Decode(ids))
	}
	return nil
}
