package main

import (
	"errors"

	"llm-knowledge-be/internal/dto"

	"github.com/spf13/cobra"
)

var processPending bool

var processCmd = &cobra.Command{
	Use:   "process [resource-id...]",
	Short: "Run resources through retrieve, parse, chunk and embed",
	Long: `Runs the named resources through every remaining pipeline stage.
With --pending every resource that is not ready and not locked is swept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			report *dto.PipelineReport
			err    error
		)
		switch {
		case processPending:
			report, err = container.Pipeline.ProcessPending(cmd.Context())
		case len(args) == 0:
			return errors.New("pass resource ids or --pending")
		default:
			ids, perr := parseIDs(args)
			if perr != nil {
				return perr
			}
			report, err = container.Pipeline.Process(cmd.Context(), ids)
		}
		if err != nil {
			return err
		}
		return printPipelineReport(cmd, report)
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed <collection-id> [resource-id...]",
	Short: "Embed the chunks of a collection's resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		report, err := container.Collections.EmbedResources(cmd.Context(), ids[0], ids[1:])
		if err != nil {
			return err
		}
		return printEmbedReport(cmd, report)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <collection-id>",
	Short: "Drop a collection's vectors and embed every member again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		report, err := container.Collections.Reindex(cmd.Context(), ids[0])
		if err != nil {
			return err
		}
		return printEmbedReport(cmd, report)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processPending, "pending", false, "sweep every pending resource")
	rootCmd.AddCommand(processCmd, embedCmd, reindexCmd)
}
