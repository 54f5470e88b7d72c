package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stamzoek/stamzoek/internal/answer"
	"github.com/stamzoek/stamzoek/internal/search"
	"github.com/stamzoek/stamzoek/internal/signature"
	"github.com/stamzoek/stamzoek/internal/telemetry"
)

type queryOptions struct {
	limit       int
	noExpansion bool
	graphHops   int
	format      string
	askModel    bool
	showContext bool
	offline     bool
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the ingested corpus",
		Long: `Query runs the hybrid retriever: lexical trigrams, vector
similarity and phonetic name matching are fused with reciprocal rank
fusion, then expanded along the book's entry structure and the
relationship graph. Use --answer to have the local model answer the
question from the retrieved context.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Number of fused candidates to keep (0 = configured default)")
	cmd.Flags().BoolVar(&opts.noExpansion, "no-expansion", false, "Disable structural context expansion")
	cmd.Flags().IntVar(&opts.graphHops, "graph-hops", -1, "Relationship graph hop limit (-1 = configured, 0 = off)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.askModel, "answer", false, "Answer the question with the configured model")
	cmd.Flags().BoolVar(&opts.showContext, "context", false, "Print the assembled context window")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the hash embedder instead of the configured model")

	return cmd
}

func runQuery(cmd *cobra.Command, query string, opts *queryOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	meta, lexical, vector, _, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores(meta, lexical, vector, logger)

	embedder, err := newEmbedder(ctx, cfg, opts.offline, logger)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	engine, err := search.NewEngine(lexical, vector, meta, embedder,
		search.WithLogger(logger),
		search.WithMetrics(telemetry.NewMetrics()),
		search.WithConfig(search.Config{
			RRFConstant:        cfg.Retrieval.RRFConstant,
			DefaultLimit:       cfg.Retrieval.DefaultLimit,
			MaxLimit:           cfg.Retrieval.MaxLimit,
			ExpansionEnabled:   cfg.Retrieval.ExpansionEnabled,
			ExpansionPenalty:   cfg.Retrieval.ExpansionPenalty,
			ExpansionCap:       cfg.Retrieval.ExpansionCap,
			GraphHopLimit:      cfg.Retrieval.GraphHopLimit,
			ContextBudgetChars: cfg.Retrieval.ContextBudgetChars,
		}),
	)
	if err != nil {
		return err
	}

	resp, err := engine.Query(ctx, query, search.Options{
		Limit:            opts.limit,
		DisableExpansion: opts.noExpansion,
		GraphHopLimit:    opts.graphHops,
	})
	if err != nil {
		return err
	}

	var answered string
	if opts.askModel {
		collaborator := answer.NewOllama(answer.OllamaConfig{
			Host:  cfg.Answer.OllamaHost,
			Model: cfg.Answer.Model,
		})
		answered, err = collaborator.Answer(ctx, query, resp.Context)
		if err != nil {
			return err
		}
	}

	if opts.format == "json" {
		return printResponseJSON(cmd.OutOrStdout(), resp, answered)
	}
	printResponse(cmd.OutOrStdout(), resp, answered, opts.showContext)
	return nil
}

func printResponse(out io.Writer, resp *search.Response, answered string, showContext bool) {
	if len(resp.Results) == 0 {
		fmt.Fprintf(out, "No results for %q (%s)\n", resp.Query, resp.Elapsed.Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "%d results for %q (%s)\n", len(resp.Results), resp.Query, resp.Elapsed.Round(time.Millisecond))
	}
	for _, note := range resp.Notes {
		fmt.Fprintf(out, "note: %s\n", note)
	}

	for i, r := range resp.Results {
		fmt.Fprintf(out, "\n%d. [%s p.%d", i+1, r.Chunk.DocumentID, r.Chunk.Page)
		if code := r.Chunk.AnchorCode(); code != "" {
			fmt.Fprintf(out, " %s", code)
		}
		fmt.Fprintf(out, "] %s", r.Stage)
		switch r.Stage {
		case search.StageDirect:
			fmt.Fprintf(out, " score=%.4f", r.Score)
		case search.StageExpansion:
			fmt.Fprintf(out, " score=%.4f via %s", r.Score, r.Trigger)
		case search.StageGraph:
			fmt.Fprintf(out, " %s, %d hop(s)", r.Via, r.Hops)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "   %s\n", snippet(r.Chunk.OwnText(), 160))
		for _, e := range r.Entities {
			fmt.Fprintf(out, "   mentions %s (%s %s)\n", e.Name, e.Kind, e.AnchorCode)
		}
	}

	if showContext && resp.Context != "" {
		fmt.Fprintf(out, "\n--- context ---\n%s\n", resp.Context)
	}
	if answered != "" {
		fmt.Fprintf(out, "\n--- answer ---\n%s\n", answered)
	}
}

// queryOutput is the JSON shape of a query response.
type queryOutput struct {
	Query    string         `json:"query"`
	Results  []resultOutput `json:"results"`
	Context  string         `json:"context,omitempty"`
	Answer   string         `json:"answer,omitempty"`
	Degraded []string       `json:"degraded,omitempty"`
	Notes    []string       `json:"notes,omitempty"`
	Elapsed  string         `json:"elapsed"`
}

type resultOutput struct {
	Fingerprint string         `json:"fingerprint"`
	DocumentID  string         `json:"document_id"`
	Page        int            `json:"page"`
	AnchorCode  string         `json:"anchor_code,omitempty"`
	Stage       string         `json:"stage"`
	Score       float64        `json:"score"`
	Ranks       map[string]int `json:"ranks,omitempty"`
	Trigger     string         `json:"trigger,omitempty"`
	Via         string         `json:"via,omitempty"`
	Hops        int            `json:"hops,omitempty"`
	Text        string         `json:"text"`
	Entities    []string       `json:"entities,omitempty"`
}

func printResponseJSON(out io.Writer, resp *search.Response, answered string) error {
	payload := queryOutput{
		Query:   resp.Query,
		Context: resp.Context,
		Answer:  answered,
		Notes:   resp.Notes,
		Elapsed: resp.Elapsed.String(),
	}
	for _, sig := range resp.Degraded {
		payload.Degraded = append(payload.Degraded, string(sig))
	}
	for _, r := range resp.Results {
		ro := resultOutput{
			Fingerprint: r.Chunk.Fingerprint,
			DocumentID:  r.Chunk.DocumentID,
			Page:        r.Chunk.Page,
			AnchorCode:  r.Chunk.AnchorCode(),
			Stage:       string(r.Stage),
			Score:       r.Score,
			Ranks:       signalRanks(r.Ranks),
			Trigger:     r.Trigger,
			Via:         string(r.Via),
			Hops:        r.Hops,
			Text:        r.Chunk.OwnText(),
		}
		for _, e := range r.Entities {
			ro.Entities = append(ro.Entities, fmt.Sprintf("%s (%s %s)", e.Name, e.Kind, e.AnchorCode))
		}
		payload.Results = append(payload.Results, ro)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func signalRanks(ranks map[signature.Signal]int) map[string]int {
	if len(ranks) == 0 {
		return nil
	}
	out := make(map[string]int, len(ranks))
	for sig, rank := range ranks {
		out[string(sig)] = rank
	}
	return out
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndexByte(text[:max], ' ')
	if cut < 1 {
		cut = max
	}
	return text[:cut] + "..."
}
