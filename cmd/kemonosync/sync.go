package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kemonosync/internal/downloader"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/syncer"
)

var (
	updateCreator string
	updateService string
)

var queryCmd = &cobra.Command{
	Use:   "query <service> <creator>",
	Short: "Print every post of a creator as JSON",
	Example: `  kemonosync -H kemono.su query patreon 12345
  KEMONO_SERVICE=fanbox KEMONO_CREATOR=678 kemonosync query`,
	Args: cobra.MaximumNArgs(2),
	RunE: runQuery,
}

var downloadCmd = &cobra.Command{
	Use:   "download <service> <creator>",
	Short: "Download a creator's attachments and post metadata",
	Long: `Download every attachment of every post a creator has published on a
service. Attachments already on disk are skipped; post metadata is written
once and never rewritten.`,
	Example: `  kemonosync -H kemono.su download patreon 12345
  kemonosync -H kemono.su -t 4 -f .zip download fanbox 678`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDownload,
}

var statsCmd = &cobra.Command{
	Use:   "stats <service> <creator>",
	Short: "Count a creator's posts and files by type",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runStats,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-sync every creator already in the download tree",
	Long: `Walk the download root and run a download for every <creator>/<service>
directory found there. A creator that fails is logged and skipped; a 429
stops the walk.`,
	Example: `  kemonosync -H kemono.su update
  kemonosync -H kemono.su update --creator 12345
  kemonosync -H kemono.su update --service fanbox`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(queryCmd, downloadCmd, statsCmd, updateCmd)

	updateCmd.Flags().StringVar(&updateCreator, "creator", os.Getenv("KEMONO_CREATOR"), "only update this creator")
	updateCmd.Flags().StringVar(&updateService, "service", os.Getenv("KEMONO_SERVICE"), "only update this service")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runQuery(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.finish()

	posts, err := a.syncer.Query(ctx, key)
	if err != nil {
		return err
	}
	return a.out.JSON(posts)
}

func runStats(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.finish()

	stats, err := a.syncer.Stats(ctx, key)
	if err != nil {
		return err
	}
	return a.out.JSON(stats)
}

func runDownload(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.finish()

	report, err := a.syncer.Download(ctx, key)
	if report != nil && report.Result != nil {
		warnFailed(a, report.Result)
		if perr := a.out.JSON(summarize(report)); perr != nil {
			return perr
		}
	}
	return err
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.finish()

	report, err := a.syncer.UpdateAll(ctx, syncer.UpdateOptions{
		Creator: updateCreator,
		Service: updateService,
		OnPartition: func(key kemono.CreatorService) {
			if perr := a.out.JSONLine(key); perr != nil {
				a.log.WithError(perr).Warn("failed to write partition line")
			}
		},
	})
	if report != nil {
		for _, r := range report.Reports {
			if r.Result != nil {
				warnFailed(a, r.Result)
			}
		}
		for _, f := range report.Failed {
			a.out.Warning("Failed to update "+f.Partition.String(), f.Err)
		}
	}
	return err
}

// warnFailed prints one status line per attachment that could not be saved
func warnFailed(a *app, result *downloader.Result) {
	for _, o := range result.ByStatus(downloader.StatusFailed) {
		a.out.Warning("Failed to download "+o.Task.Attachment.Name, o.Err)
	}
}

// runSummary is the JSON document printed after a download
type runSummary struct {
	RunID           string `json:"run_id"`
	Creator         string `json:"creator"`
	Service         string `json:"service"`
	Posts           int    `json:"posts"`
	MetadataWritten int    `json:"metadata_written"`
	Downloaded      int    `json:"downloaded"`
	Skipped         int    `json:"skipped"`
	Filtered        int    `json:"filtered"`
	Failed          int    `json:"failed"`
	Aborted         int    `json:"aborted"`
	Bytes           int64  `json:"bytes"`
	RateLimited     bool   `json:"rate_limited"`
}

func summarize(r *syncer.Report) runSummary {
	s := r.Result.Summary()
	return runSummary{
		RunID:           r.RunID,
		Creator:         r.Partition.Creator,
		Service:         r.Partition.Service,
		Posts:           r.Posts,
		MetadataWritten: r.MetadataWritten,
		Downloaded:      s.Downloaded,
		Skipped:         s.Skipped,
		Filtered:        s.Filtered,
		Failed:          s.Failed,
		Aborted:         s.Aborted,
		Bytes:           s.Bytes,
		RateLimited:     r.Result.RateLimited,
	}
}
