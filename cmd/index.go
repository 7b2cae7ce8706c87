package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and manage the vector index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Index.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Documents: %d\nSources:   %d\n", stats.Documents, stats.Sources)
		return nil
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a retrieval query without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		topK, _ := cmd.Flags().GetInt("top-k")
		matches, err := a.RAG.Retrieve(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for i, m := range matches {
			fmt.Printf("%d. %s (similarity %.3f)\n", i+1, m.ID, m.Similarity)
			if src, ok := m.Metadata["source"].(string); ok {
				fmt.Printf("   source: %s\n", src)
			}
			preview := m.Content
			if len(preview) > 160 {
				preview = preview[:160] + "…"
			}
			fmt.Printf("   %s\n", strings.ReplaceAll(preview, "\n", " "))
		}
		return nil
	},
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete [source]",
	Short: "Delete all documents ingested from a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Index.DeleteBySource(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.Tracker.Forget(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %d documents from %s\n", deleted, args[0])
		return nil
	},
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("This removes ALL indexed documents. Type 'yes' to continue: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Index.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	indexSearchCmd.Flags().Int("top-k", 0, "number of matches to return (0 uses the configured default)")
	indexCmd.AddCommand(indexStatsCmd, indexSearchCmd, indexDeleteCmd, indexClearCmd)
	rootCmd.AddCommand(indexCmd)
}
