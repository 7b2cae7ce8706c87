package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest recipe files or directories into the index",
	Long: `Ingest loads the given files or directories, splits them into chunks,
embeds them and stores them in the vector index. Directories are walked
recursively; files already ingested at their current modification time
are skipped unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest files even if unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		if ingestForce {
			records, err := a.Tracker.List(ctx)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if rec.Source == path || strings.HasPrefix(rec.Source, path+string(os.PathSeparator)) {
					if err := a.Tracker.Forget(ctx, rec.Source); err != nil {
						return err
					}
				}
			}
		}

		if info.IsDir() {
			report, err := a.Ingest.IngestDirectory(ctx, path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d files (%d skipped), %d chunks stored, %d failed\n",
				path, report.Files, report.Skipped, report.Stored, report.Failed)
			continue
		}

		report, err := a.Ingest.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d chunks stored, %d failed\n", path, report.Stored, report.Failed)
	}
	return nil
}
