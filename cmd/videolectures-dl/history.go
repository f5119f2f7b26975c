package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/giserh/videolectures-dl/internal/app"
	"github.com/giserh/videolectures-dl/internal/domain"
)

var (
	historyStatus string
	historyLimit  int
	forceInit     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		filters := make(map[string]interface{})
		if historyStatus != "" {
			if !domain.ValidateStatus(historyStatus) {
				return fmt.Errorf("invalid status: %s", historyStatus)
			}
			filters["status"] = historyStatus
		}

		repo, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		downloads, err := repo.FindAll(filters)
		if err != nil {
			return fmt.Errorf("failed to list downloads: %w", err)
		}
		if historyLimit > 0 && len(downloads) > historyLimit {
			downloads = downloads[:historyLimit]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tOUTCOME\tSIZE\tNAME\tCREATED")
		for _, d := range downloads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(d.ID, 8),
				d.Status,
				d.Outcome,
				humanize.Bytes(uint64(d.BytesWritten)),
				truncate(displayName(d), 40),
				humanize.Time(d.CreatedAt))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		repo, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		stats, err := repo.GetStats()
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Queued:     %d\n", stats.Queued)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Cancelled)
		fmt.Printf("  Downloaded: %s\n", humanize.Bytes(uint64(stats.BytesWritten)))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join("$HOME", ".videolectures-dl", "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		path = os.ExpandEnv(path)

		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists, use --force to replace it", path)
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyStatus, "status", "s", "", "Filter by status")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of downloads to show (0 for all)")
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Replace an existing config file")

	configCmd.AddCommand(configInitCmd)
}

// displayName prefers the scraped title and falls back to the URL
func displayName(d *domain.Download) string {
	if d.Title != "" {
		return d.Title
	}
	return d.URL
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
