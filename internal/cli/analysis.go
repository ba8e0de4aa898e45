package cli

import (
	"github.com/spf13/cobra"
)

// NewAnalysisCmd создаёт группу команд для чтения результатов анализа.
func NewAnalysisCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Browse analysis results",
	}

	cmd.AddCommand(
		newAnalysisListCmd(clientFn, outputFn),
		newAnalysisShowCmd(clientFn, outputFn),
		newAnalysisHistoryCmd(clientFn, outputFn),
	)

	return cmd
}

func newAnalysisListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			files, err := client.ListAnalyses()
			if err != nil {
				return err
			}

			headers := []string{"VIDEO_ID", "FILE"}
			rows := make([][]string, len(files))
			for i, f := range files {
				rows[i] = []string{f.VideoID, f.File}
			}

			out.Print(headers, rows, files)
			return nil
		},
	}
}

func newAnalysisShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show VIDEO_ID",
		Short: "Show analysis of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			analysis, err := client.GetAnalysis(args[0])
			if err != nil {
				return err
			}

			// Анализ всегда JSON, табличного представления нет.
			out.RawJSON(analysis)
			return nil
		},
	}
}

func newAnalysisHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history OWNER_ID",
		Short: "List analyses of an owner, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			records, err := client.ListOwnerAnalyses(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "VIDEO_ID", "ANALYZED_AT"}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{r.ID, r.VideoID, r.AnalyzedAt}
			}

			out.Print(headers, rows, records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}
