package main

import (
	"strings"

	"llm-knowledge-be/internal/dto"

	"github.com/spf13/cobra"
)

var (
	searchLimit         int
	searchCollection    string
	searchMinSimilarity float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search across active collections",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &dto.SearchRequest{
			Query: strings.Join(args, " "),
			Limit: searchLimit,
		}
		if searchCollection != "" {
			ids, err := parseIDs([]string{searchCollection})
			if err != nil {
				return err
			}
			req.CollectionId = &ids[0]
		}
		if cmd.Flags().Changed("min-similarity") {
			req.MinSimilarity = &searchMinSimilarity
		}

		resp, err := container.Search.Search(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printSearchResults(cmd, resp)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "search a single collection")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0, "minimum similarity between 0 and 1")
	rootCmd.AddCommand(searchCmd)
}
