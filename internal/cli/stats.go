package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/eventcam/internal/recorder"
)

var (
	statsDBPath  string
	statsSession string
	statsLimit   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recorded stream statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsDBPath, "db", "eventcam.db", "SQLite statistics file")
	statsCmd.Flags().StringVar(&statsSession, "session", "", "session id to inspect")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 20, "number of snapshots to show")
	statsCmd.MarkFlagRequired("session")
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := recorder.NewDB(statsDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.RecentStats(statsSession, statsLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("no snapshots for session %s\n", statsSession)
		return nil
	}
	fmt.Printf("%-20s %10s %8s %8s %10s %8s\n",
		"TIMESTAMP", "CONTAINERS", "DROPPED", "XFERERR", "MALFORMED", "FRAMES-")
	for _, r := range rows {
		fmt.Printf("%-20s %10d %8d %8d %10d %8d\n",
			r.Timestamp, r.Stats.Containers, r.Stats.DroppedContainers,
			r.Stats.TransferErrors, r.Stats.MalformedRecords, r.Stats.AbandonedFrames)
	}
	return nil
}
