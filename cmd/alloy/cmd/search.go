package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alloysearch/alloy/internal/output"
	"github.com/alloysearch/alloy/internal/retrieval"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	advanced bool
	basic    bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexes with hybrid retrieval",
		Long: `Search the indexed documents using hybrid retrieval.

Dense vector similarity and BM25 keyword matching run in parallel; their
normalized scores are fused with the configured weights. With --advanced the
query is first expanded via the synonym table and the merged candidates are
reranked by term overlap.

Examples:
  alloy search "apple stock performance"
  alloy search "股票表现" --advanced
  alloy search "earnings report" -n 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&opts.advanced, "advanced", false, "Force expansion and reranking for this query")
	cmd.Flags().BoolVar(&opts.basic, "basic", false, "Force basic mode for this query")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine(projectDir)
	if err != nil {
		return err
	}
	defer e.close()

	retriever := e.retriever
	switch {
	case opts.basic:
		retriever = e.basic
	case opts.advanced && !e.cfg.Search.Advanced:
		advanced, err := retrieval.NewAdvancedHybridRetriever(e.basic,
			retrieval.WithSynonyms(e.cfg.SynonymTable()),
			retrieval.WithVariantParallelism(e.cfg.Search.VariantParallelism),
			retrieval.WithPartialResults(e.cfg.AllowPartialResults()))
		if err != nil {
			return err
		}
		retriever = advanced
	}

	limit := opts.limit
	if limit <= 0 {
		limit = e.cfg.Search.TopK
	}

	results, err := retriever.Retrieve(cmd.Context(), query, limit)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeResultsJSON(cmd, results)
	}

	if len(results) == 0 {
		out.Linef("no results for %q", query)
		return nil
	}

	out.Header("results for " + query)
	out.Newline()
	for i, r := range results {
		out.Result(i+1, r.CombinedScore, r.Chunk.Content)
		out.Dim(componentScores(r))
	}
	return nil
}

// componentScores renders the per-source score breakdown for one result.
func componentScores(r retrieval.ScoredDocument) string {
	line := fmt.Sprintf("   vector: %.3f  keyword: %.3f", r.VectorScore, r.KeywordScore)
	if r.RerankScore > 0 {
		line += fmt.Sprintf("  rerank: %.3f", r.RerankScore)
	}
	return line
}

// writeResultsJSON emits the scored documents as indented JSON.
func writeResultsJSON(cmd *cobra.Command, results []retrieval.ScoredDocument) error {
	type jsonResult struct {
		Content       string            `json:"content"`
		Metadata      map[string]string `json:"metadata,omitempty"`
		VectorScore   float64           `json:"vector_score"`
		KeywordScore  float64           `json:"keyword_score"`
		CombinedScore float64           `json:"combined_score"`
		RerankScore   float64           `json:"rerank_score,omitempty"`
	}

	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			Content:       r.Chunk.Content,
			Metadata:      r.Chunk.Metadata,
			VectorScore:   r.VectorScore,
			KeywordScore:  r.KeywordScore,
			CombinedScore: r.CombinedScore,
			RerankScore:   r.RerankScore,
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
