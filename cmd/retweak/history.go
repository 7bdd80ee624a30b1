package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/funnyzak/retweak/internal/logger"
	"github.com/funnyzak/retweak/internal/report"
	"github.com/funnyzak/retweak/internal/storage"
)

func (c *cli) historyCmd() *cobra.Command {
	var (
		runID  string
		status int
		failed bool
		limit  int
		runs   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List results recorded with --store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			// -j switches the listing to JSON lines
			asJSON, _ := cmd.Flags().GetBool("json")
			if cfg.Storage.Path == "" {
				return fmt.Errorf("no result store configured, use --store <path>")
			}

			store, err := storage.New(&cfg.Storage, logger.New(c.stderr, &cfg.Log, cfg.Log.Format == "json"))
			if err != nil {
				return fmt.Errorf("failed to open result store: %w", err)
			}
			defer store.Close()

			if runs {
				summaries, err := store.Runs()
				if err != nil {
					return err
				}
				return printRuns(c.stdout, summaries, asJSON)
			}

			items, total, err := store.List(storage.ListOptions{
				RunID:  runID,
				Status: status,
				Failed: failed,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return printResults(c.stdout, items, total, asJSON)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only show results of this run")
	cmd.Flags().IntVar(&status, "status", 0, "Only show responses with this status code")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only show requests that failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results (0 = all)")
	cmd.Flags().BoolVar(&runs, "runs", false, "List runs instead of results")

	return cmd
}

func printResults(w io.Writer, items []*storage.StoredResult, total int, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		for _, item := range items {
			if err := encoder.Encode(item); err != nil {
				return err
			}
		}
		return nil
	}

	for _, item := range items {
		outcome := "ERROR " + item.Error
		if item.Response != nil {
			outcome = strconv.Itoa(item.Response.StatusCode) + " " + report.FormatSize(item.Response.Size())
		}
		fmt.Fprintf(w, "#%d  %s  [%d] %q  %s %s  %s  (%s, %s)\n",
			item.ID,
			shortRunID(item.RunID),
			item.Index,
			item.Value,
			item.Method,
			item.URL,
			outcome,
			item.Duration.Round(time.Millisecond),
			humanize.Time(item.Timestamp),
		)
	}
	fmt.Fprintf(w, "%d of %s result(s)\n", len(items), humanize.Comma(int64(total)))
	return nil
}

func printRuns(w io.Writer, runs []storage.RunSummary, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		for _, run := range runs {
			if err := encoder.Encode(run); err != nil {
				return err
			}
		}
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  %s request(s), %d failed\n",
			run.RunID,
			humanize.Time(time.Unix(0, run.StartedAt)),
			humanize.Comma(int64(run.Total)),
			run.Failed,
		)
	}
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
