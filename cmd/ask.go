package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/welldone-ai/assistant/internal/rag"
)

var askNoStream bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the answer only when complete")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")

	var stream func(ctx context.Context, chunk string) error
	if !askNoStream {
		stream = func(_ context.Context, chunk string) error {
			fmt.Print(chunk)
			return nil
		}
	}

	result, err := a.RAG.Query(cmd.Context(), rag.QueryRequest{
		Query:  question,
		UserID: "cli",
	}, stream)
	if err != nil {
		return err
	}

	if askNoStream {
		fmt.Println(result.Answer)
	} else {
		fmt.Println()
	}

	if len(result.Matches) > 0 {
		fmt.Println("\nSources:")
		for _, m := range result.Matches {
			if src, ok := m.Metadata["source"].(string); ok {
				fmt.Printf("  %s (similarity %.2f)\n", src, m.Similarity)
			}
		}
	}
	return nil
}
