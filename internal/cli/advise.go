package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewAdviseCmd создаёт команду запроса к Super Advisor.
func NewAdviseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "advise QUERY...",
		Short: "Ask the advisor, using the user's session history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			client := clientFn()
			out := outputFn()

			advice, err := client.Advise(user, strings.Join(args, " "))
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(advice)
				return nil
			}

			out.Line(fmt.Sprintf("Category: %s (history sessions: %d)", advice.DetectedCategory, advice.HistorySessions))
			for i, a := range advice.Advices {
				out.Line(fmt.Sprintf("%d. %s", i+1, a))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID whose history is used")

	return cmd
}
