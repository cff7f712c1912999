package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jask/smsledger/internal/service"
	"github.com/jask/smsledger/internal/source"
	"github.com/jask/smsledger/internal/tui"
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("file", "f", "", "JSONL export of messages (one {id,sender,body,timestamp} per line)")
	scanCmd.Flags().Bool("full", false, "Reprocess history newest first instead of syncing from the bookmark")
	scanCmd.Flags().Bool("tui", false, "Show a live progress view")
	scanCmd.MarkFlagRequired("file")
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Ingest messages from an export file",
	Long: `Ingest messages from a JSONL export. By default only messages at or
after the last processed one are read; --full rescans history newest first,
capped at batch.max_messages. Duplicates are caught either way.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	full, _ := cmd.Flags().GetBool("full")
	useTUI, _ := cmd.Flags().GetBool("tui")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(cmd, func(a *app) error {
		sync := &service.SyncService{
			DB:          a.db,
			Engine:      a.engine,
			Source:      source.JSONLFile{Path: path},
			MaxMessages: a.cfg.Batch.MaxMessages,
		}
		scan, title := sync.SyncIncremental, "Syncing "+path
		if full {
			scan, title = sync.FullScan, "Full scan of "+path
		}

		var (
			sum service.Summary
			err error
		)
		if useTUI {
			sum, err = tui.Run(ctx, title, tui.ScanFunc(scan))
		} else {
			sum, err = scan(ctx, nil)
		}
		if werr := printSummary(cmd.OutOrStdout(), sum); werr != nil {
			return werr
		}
		return err
	})
}

func printSummary(w io.Writer, sum service.Summary) error {
	fmt.Fprintf(w, "processed %d/%d: %d inserted, %d duplicates, %d rejected, %d malformed\n",
		sum.Processed, sum.Total, sum.Accepted, sum.Duplicates, sum.Rejected, len(sum.Malformed))
	if len(sum.Reasons) == 0 {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"rejections": sum.Reasons})
}
