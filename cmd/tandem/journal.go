package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/storage"
	"github.com/tandem-ha/tandem/pkg/types"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the recorded role transitions",
	Long: `Show the role transition journal for this node.

Every transition attempt is recorded with its trigger and outcome, so
after an incident the journal shows who held the primary role when.
Example:

  tandem journal --config /etc/tandem/tandem.yaml --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		limit, _ := cmd.Flags().GetInt("limit")

		if dataDir == "" {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			dataDir = cfg.DataDir
		}

		store, err := storage.Open(dataDir)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		records, err := store.ListTransitions(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No role transitions recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tNODE\tFROM\tTO\tTRIGGER\tOUTCOME\tDETAIL")
		for _, rec := range records {
			fmt.Fprintln(w, formatTransition(rec))
		}
		return w.Flush()
	},
}

// formatTransition renders one journal record as a tab-separated row
func formatTransition(rec *types.TransitionRecord) string {
	outcome := "failure"
	if rec.Succeeded {
		outcome = "success"
	}
	from := string(rec.From)
	if from == "" {
		from = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s",
		rec.Timestamp.Format(time.RFC3339),
		rec.Node, from, rec.To, rec.Trigger, outcome, rec.Detail)
}

func init() {
	journalCmd.Flags().String("config", "", "Path to the cluster configuration file")
	journalCmd.Flags().String("data-dir", "", "Data directory (overrides the configured one)")
	journalCmd.Flags().Int("limit", 0, "Show only the most recent N transitions (0 for all)")
}
