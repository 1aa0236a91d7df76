package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"kemonosync/pkg/auth"
	"kemonosync/pkg/config"
	kerrors "kemonosync/pkg/errors"
	"kemonosync/pkg/kemono"
	"kemonosync/pkg/logger"
	"kemonosync/pkg/metrics"
	"kemonosync/pkg/ratelimit"
	"kemonosync/pkg/storage"
	"kemonosync/pkg/syncer"
	"kemonosync/pkg/ui"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitRateLimited = 2
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile  string
	accountName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kemonosync",
	Short: "Mirror creators' posts and attachments from a Kemono-style archive",
	Long: `kemonosync downloads every attachment a creator has published on a service
into a local tree, and records each post's metadata next to them:

  <output>/<creator>/<service>/<published>-<name>
  <output>/<creator>/<service>/metadata/<post-id>.json

Files already on disk are never fetched again, so re-running a download or
an update only fetches what is new. A 429 from the upstream stops the run
with exit status 2.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default is ./.kemonosync.yaml or ~/.kemonosync.yaml)")
	flags.StringVarP(&accountName, "account", "a", "", "stored account to log in with")
	flags.StringP("hostname", "H", "", "upstream host, e.g. kemono.su (env KEMONO_HOSTNAME)")
	flags.IntP("threads", "t", 2, "number of concurrent downloads")
	flags.BoolP("debug", "d", false, "enable debug logging")
	flags.BoolP("mkvs", "m", false, "treat an existing .mkv as a downloaded .mp4/.m4v")
	flags.StringP("filename", "f", "", "only download attachments whose name contains this")
	flags.StringP("output", "o", "", "download root (default ./download)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Int("requests-per-minute", 0, "pace upstream requests (0 disables pacing)")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file after the run")

	rootCmd.SetVersionTemplate(`kemonosync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	ui.PrintError("Error", err)
	if kerrors.IsRateLimited(err) {
		return exitRateLimited
	}
	return exitFailure
}

// flagOverrides collects the persistent flags the user actually set, keyed
// the way config.MergeCommandLineFlags expects
func flagOverrides(flags *pflag.FlagSet) map[string]interface{} {
	overrides := make(map[string]interface{})

	for _, name := range []string{"hostname", "filename", "output", "log-level", "metrics-textfile"} {
		if flags.Changed(name) {
			v, _ := flags.GetString(name)
			overrides[name] = v
		}
	}
	for _, name := range []string{"threads", "requests-per-minute"} {
		if flags.Changed(name) {
			v, _ := flags.GetInt(name)
			overrides[name] = v
		}
	}
	for _, name := range []string{"debug", "mkvs"} {
		if flags.Changed(name) {
			v, _ := flags.GetBool(name)
			overrides[name] = v
		}
	}
	return overrides
}

// app holds everything a sync command needs
type app struct {
	cfg     *config.Config
	log     logger.Logger
	client  *kemono.Client
	syncer  *syncer.Syncer
	metrics *metrics.Recorder
	out     *ui.Printer
}

// newApp loads configuration, sets up logging and builds the client. When
// login is set and credentials are available the client logs in first.
func newApp(ctx context.Context, cmd *cobra.Command, login bool) (*app, error) {
	cfg, err := config.Load(configFile, flagOverrides(cmd.Flags()))
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger().WithField("command", cmd.Name())

	client := kemono.NewClient(kemono.Options{
		Hostname:        cfg.API.Hostname,
		UserAgent:       cfg.API.UserAgent,
		RequestTimeout:  cfg.API.RequestTimeout,
		DownloadTimeout: cfg.API.DownloadTimeout,
		Limiter:         ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		Logger:          log,
	})

	if login {
		if err := loginIfConfigured(ctx, cfg, client, log); err != nil {
			return nil, err
		}
	}

	rec := metrics.NewRecorder()
	opts := syncer.OptionsFromConfig(cfg)
	opts.Fetcher = client
	opts.Sessions = syncer.ClientSessions(client)
	opts.Store = storage.NewOSStore()
	opts.Metrics = rec
	opts.Logger = log

	return &app{
		cfg:     cfg,
		log:     log,
		client:  client,
		syncer:  syncer.New(opts),
		metrics: rec,
		out:     ui.Default(),
	}, nil
}

// loginIfConfigured logs in with the configured username, or with a stored
// account. Without any credentials the client stays anonymous, unless an
// account was asked for by name.
func loginIfConfigured(ctx context.Context, cfg *config.Config, client *kemono.Client, log logger.Logger) error {
	username, password := cfg.API.Username, cfg.API.Password

	if username == "" {
		manager, err := auth.NewManager()
		if err != nil {
			if accountName != "" {
				return fmt.Errorf("failed to open credential store: %w", err)
			}
			log.WithError(err).Debug("credential store unavailable, continuing anonymously")
			return nil
		}

		account, err := manager.Resolve(accountName)
		if err != nil {
			if accountName != "" || !errors.Is(err, auth.ErrCredentialsNotFound) {
				return fmt.Errorf("failed to load account: %w", err)
			}
			return nil
		}
		username, password = account.Username, account.Password
	}

	if err := client.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login as %s failed: %w", username, err)
	}
	log.WithField("username", username).Info("logged in")
	return nil
}

// finish writes the metrics textfile when one is configured
func (a *app) finish() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	a.metrics.Finish(time.Now())
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.log.WithError(err).Warn("failed to write metrics textfile")
	}
}

// resolveKey reads service and creator from args, falling back to
// KEMONO_SERVICE and KEMONO_CREATOR
func resolveKey(args []string) (kemono.CreatorService, error) {
	key := kemono.CreatorService{
		Service: os.Getenv("KEMONO_SERVICE"),
		Creator: os.Getenv("KEMONO_CREATOR"),
	}
	if len(args) > 0 {
		key.Service = args[0]
	}
	if len(args) > 1 {
		key.Creator = args[1]
	}

	if key.Service == "" || key.Creator == "" {
		return key, errors.New("service and creator are required (arguments or KEMONO_SERVICE/KEMONO_CREATOR)")
	}
	return key, nil
}
