package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hfdownloader/hfd/internal/config"
	"github.com/hfdownloader/hfd/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past hfd runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(config.HistoryDBPath())
		if err != nil {
			return exitFatal(err)
		}
		defer ledger.Close()

		entries, err := ledger.Recent(50)
		if err != nil {
			return exitFatal(err)
		}
		if len(entries) == 0 {
			fmt.Println("no runs recorded yet")
			return nil
		}
		for _, e := range entries {
			status := "ok"
			if e.FilesFailed > 0 {
				status = fmt.Sprintf("%d failed", e.FilesFailed)
			}
			fmt.Printf("%s  %-30s %d/%d files  %s  %s  %s\n",
				e.CompletedAt.Format("2006-01-02 15:04:05"),
				e.RepoID, e.FilesDownloaded, e.FilesTotal,
				humanize.Bytes(uint64(e.BytesTotal)), time.Duration(e.ElapsedMs)*time.Millisecond, status)
		}
		return nil
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <repo_id>",
	Short: "Remove a repository's entries from the history ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := history.Open(config.HistoryDBPath())
		if err != nil {
			return exitFatal(err)
		}
		defer ledger.Close()

		n, err := ledger.RemoveRepo(args[0])
		if err != nil {
			return exitFatal(err)
		}
		fmt.Printf("removed %d entr%s for %s\n", n, plural(n), args[0])
		return nil
	},
}

func plural(n int64) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func init() {
	historyCmd.AddCommand(historyRmCmd)
}
