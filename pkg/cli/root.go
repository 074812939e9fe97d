// Package cli is the command-line front end: one cobra subcommand per
// delivery operation plus a JSON-lines server for UI integration.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-artifactdelivery/pkg/bridge"
	"github.com/go-artifactdelivery/pkg/config"
	"github.com/go-artifactdelivery/pkg/signal"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Version is set at build time with -ldflags "-X .../pkg/cli.Version=..."
var Version = "dev"

// BooleanFlags lists the boolean flags for utils.NormalizeBooleanFlags
var BooleanFlags = map[string]struct{}{
	"debug":      {},
	"verbose":    {},
	"no-profile": {},
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	debug         bool
	verbose       bool
	logFile       string
	configFile    string
	profileDomain string
	noProfile     bool

	userAgent      string
	maxRedirects   int
	connectTimeout int // seconds
	totalTimeout   int // seconds
	readBufferSize int
	minimumSize    int64
	chunkSize      int
	milestoneStep  int
	concurrency    int
	candidateDirs  []string
	tempDir        string
}

// app is the state built once flags are parsed
type app struct {
	opts    globalOptions
	out     io.Writer
	errOut  io.Writer
	cfg     *config.Config
	logger  *utils.Logger
	service *bridge.Service
	ctx     context.Context
	cancel  context.CancelFunc
}

// Execute runs the command line and returns the process exit code
func Execute(args []string, out, errOut io.Writer) int {
	a := &app{out: out, errOut: errOut}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "artifactdelivery",
		Short:         "Download, save and launch update artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	o := &a.opts
	flags := cmd.PersistentFlags()
	flags.BoolVar(&o.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&o.verbose, "verbose", false, "enable verbose logging")
	flags.StringVar(&o.logFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&o.configFile, "config", "", "read settings from this plist file instead of the preference domain")
	flags.StringVar(&o.profileDomain, "profile-domain", config.DefaultProfileDomain, "preference domain to read settings from")
	flags.BoolVar(&o.noProfile, "no-profile", false, "ignore managed and user preferences")

	flags.StringVar(&o.userAgent, "user-agent", config.DefaultUserAgent, "User-Agent sent with downloads")
	flags.IntVar(&o.maxRedirects, "max-redirects", config.DefaultMaxRedirects, "maximum redirects followed per download")
	flags.IntVar(&o.connectTimeout, "connect-timeout", int(config.DefaultConnectTimeout.Seconds()), "connect timeout in seconds")
	flags.IntVar(&o.totalTimeout, "timeout", int(config.DefaultTotalTimeout.Seconds()), "total download timeout in seconds")
	flags.IntVar(&o.readBufferSize, "read-buffer", config.DefaultReadBufferSize, "bytes read from the network per chunk")
	flags.Int64Var(&o.minimumSize, "min-size", 0, "reject downloads smaller than this many bytes (0 disables)")
	flags.IntVar(&o.chunkSize, "chunk-size", config.DefaultDecodeChunkSize, "encoded characters decoded per chunk (multiple of 4)")
	flags.IntVar(&o.milestoneStep, "milestone-step", config.DefaultMilestoneStep, "percent between logged progress milestones")
	flags.IntVar(&o.concurrency, "concurrency", config.DefaultMaxConcurrency, "maximum parallel downloads")
	flags.StringSliceVar(&o.candidateDirs, "candidate-dir", nil, "destination directory to try, most preferred first (repeatable)")
	flags.StringVar(&o.tempDir, "temp-dir", "", "fallback directory when no candidate is writable")

	cmd.AddCommand(
		newOpenCmd(a),
		newRevealCmd(a),
		newInstallCmd(a),
		newWritablePathCmd(a),
		newDownloadCmd(a),
		newSaveCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// setup loads configuration with precedence defaults, preferences, flags
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.NewConfig()
	o := a.opts

	var profile *config.ProfileResult
	var err error
	switch {
	case o.configFile != "":
		profile, err = cfg.LoadPlistFile(o.configFile)
		if err != nil {
			return err
		}
	case !o.noProfile:
		if profile, err = cfg.ReadFromProfile(o.profileDomain); err != nil {
			fmt.Fprintf(a.errOut, "Warning: preference reading failed (continuing with defaults): %v\n", err)
			profile = &config.ProfileResult{Source: "none"}
		}
	default:
		profile = &config.ProfileResult{Source: "none"}
	}

	// Only flags that were explicitly set override preferences
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = o.debug
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.verbose
	}
	if flags.Changed("log-file") {
		cfg.LogFilePath = o.logFile
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = o.userAgent
	}
	if flags.Changed("max-redirects") {
		cfg.MaxRedirects = o.maxRedirects
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout = seconds(o.connectTimeout)
	}
	if flags.Changed("timeout") {
		cfg.TotalTimeout = seconds(o.totalTimeout)
	}
	if flags.Changed("read-buffer") {
		cfg.ReadBufferSize = o.readBufferSize
	}
	if flags.Changed("min-size") {
		cfg.MinimumSize = o.minimumSize
	}
	if flags.Changed("chunk-size") {
		cfg.DecodeChunkSize = o.chunkSize
	}
	if flags.Changed("milestone-step") {
		cfg.MilestoneStep = o.milestoneStep
	}
	if flags.Changed("concurrency") {
		cfg.DownloadMaxConcurrency = o.concurrency
	}
	if flags.Changed("candidate-dir") {
		cfg.CandidateDirs = o.candidateDirs
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = o.tempDir
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// serve speaks its protocol on stdout, so logs go to stderr there
	console := a.out
	if cmd.Name() == "serve" {
		console = a.errOut
	}
	logger := utils.NewLoggerWithWriter(cfg.Debug, cfg.Verbose, console)
	if cfg.LogFilePath != "" {
		fileLogger, err := utils.NewLoggerWithFile(cfg.Debug, cfg.Verbose, console, cfg.LogFilePath)
		if err != nil {
			fmt.Fprintf(a.errOut, "Warning: failed to create file logger: %v\nUsing console-only logging\n", err)
		} else {
			logger = fileLogger
		}
	}

	if profile.ConfigFound {
		logger.Debug("Settings read from %s preferences: %s", profile.Source, profile.Path)
	} else {
		logger.Debug("No preferences found, using defaults and command line")
	}
	if logger.DebugEnabled() {
		if b, err := json.MarshalIndent(cfg.RedactedForLogging(), "", "  "); err == nil {
			logger.Debug("Final configuration:\n%s", string(b))
		}
	}

	a.cfg = cfg
	a.logger = logger
	a.service = bridge.NewService(cfg, logger)
	a.ctx, a.cancel = signal.WithCancelOnInterrupt(context.Background(), logger)
	return nil
}

func (a *app) close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.logger != nil {
		a.logger.Close()
	}
}

func (a *app) println(msg string) {
	fmt.Fprintln(a.out, msg)
}
