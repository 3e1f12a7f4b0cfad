package main

import (
	"encoding/json"
	"fmt"

	"llm-knowledge-be/internal/dto"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	headColor = color.New(color.FgCyan, color.Bold)
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printPipelineReport(cmd *cobra.Command, r *dto.PipelineReport) error {
	if jsonOutput {
		return printJSON(cmd, r)
	}
	out := cmd.OutOrStdout()
	headColor.Fprintln(out, "Pipeline report")
	fmt.Fprintf(out, "  retrieved %d  parsed %d  chunked %d  embedded %d  reset %d  skipped %d\n",
		r.Retrieved, r.Parsed, r.Chunked, r.Embedded, r.Reset, r.Skipped)
	if len(r.Failures) == 0 {
		okColor.Fprintln(out, "  no failures")
		return nil
	}
	for _, f := range r.Failures {
		errColor.Fprintf(out, "  %s [%s] %s\n", f.ResourceId, f.Stage, f.Error)
	}
	return nil
}

func printEmbedReport(cmd *cobra.Command, r *dto.EmbedReport) error {
	if jsonOutput {
		return printJSON(cmd, r)
	}
	out := cmd.OutOrStdout()
	headColor.Fprintf(out, "Collection %s\n", r.CollectionId)
	fmt.Fprintf(out, "  %d chunks from %d resources, %d ready\n",
		r.ProcessedChunks, r.ProcessedResources, len(r.ReadyResourceIds))
	if r.Success {
		okColor.Fprintln(out, "  success")
		return nil
	}
	for _, f := range r.Failures {
		errColor.Fprintf(out, "  batch %d (%d resources): %s\n", f.Batch, len(f.ResourceIds), f.Error)
	}
	return nil
}

func printSearchResults(cmd *cobra.Command, r *dto.SearchResponse) error {
	if jsonOutput {
		return printJSON(cmd, r)
	}
	out := cmd.OutOrStdout()
	if len(r.Results) == 0 {
		warnColor.Fprintln(out, "No results found.")
	}
	for i, res := range r.Results {
		headColor.Fprintf(out, "[%d] %s #%d (%.3f)\n", i+1, res.ResourceName, res.Sequence, res.Score)
		fmt.Fprintf(out, "    %s\n\n", snippet(res.Content, 240))
	}
	for _, sk := range r.SkippedCollections {
		warnColor.Fprintf(out, "skipped collection %s: %s\n", sk.CollectionId, sk.Reason)
	}
	return nil
}

func snippet(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
