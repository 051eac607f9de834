package cmd

import (
	"fmt"
	"os"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/config"
	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/metrics"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

var (
	cfgPath       string
	logLevel      string
	metricsListen string

	cfg *config.Config

	runMetrics  *metrics.Metrics
	metricsOnce sync.Once
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bulwark",
	Short: "Protect archived files against silent corruption",
	Long: `Bulwark generates a companion redundancy file ("ecc file") for a
directory tree, from which corrupted bytes can later be reconstructed
without any other copy of the data. Repair is always best-effort and
per-block: a damaged region degrades only itself, never the rest of
the archive.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch {
		case cfgPath != "":
			cfg, err = config.LoadConfig(cfgPath)
		case config.ConfigExists(config.GetDefaultConfigPath()):
			cfg, err = config.LoadConfig(config.GetDefaultConfigPath())
		default:
			cfg = config.DefaultConfig()
		}
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		lvl, err := logging.LevelFromString(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		logging.SetAllLoggers(lvl)

		listen := cfg.MetricsListen
		if metricsListen != "" {
			listen = metricsListen
		}
		if listen != "" {
			metricsOnce.Do(func() {
				runMetrics = metrics.NewMetrics()
				metrics.Serve(listen)
			})
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a bulwark config profile (default: ~/.config/bulwark/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "host:port for the Prometheus endpoint (overrides config)")
}

// codecFlags registers the codec parameter overrides shared by the
// commands that need generation parameters.
func codecFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("profile", 0, "Codec parameter profile (1-4)")
	f.Int("block-size", 0, "Codeword length per track (max 255)")
	f.String("hash", "", "Track digest algorithm: md5 or sha1")
	f.Float64("rate", 0, "Resiliency rate (fraction of each block repairable)")
	f.Int64("header-size", -1, "Protect only the first N bytes of each file (0 = whole file)")
	f.Bool("adaptive", false, "Variable-rate schedule: --rate within the header region, then --rate2 down to --rate3")
	f.Float64("rate2", 0, "Adaptive rate at the start of the post-header region")
	f.Float64("rate3", 0, "Adaptive rate at the end of the file")
	f.Int("replication", 0, "Write each ecc entry N times")
}

// paramsOverride bundles the effective generation parameters and token
// grammar after flag overrides.
type paramsOverride struct {
	params eccfile.Params
	format eccfile.Format
}

// codecParams applies any changed codec flags over the configured
// defaults.
func codecParams(cmd *cobra.Command) (p paramsOverride, err error) {
	p.params = cfg.Codec
	f := cmd.Flags()
	if f.Changed("profile") {
		v, _ := f.GetInt("profile")
		p.params.Profile = rs.Profile(v)
	}
	if f.Changed("block-size") {
		p.params.BlockSize, _ = f.GetInt("block-size")
	}
	if f.Changed("hash") {
		v, _ := f.GetString("hash")
		p.params.HashAlgo = hasher.Algo(v)
	}
	if f.Changed("rate") {
		p.params.RateS1, _ = f.GetFloat64("rate")
	}
	if f.Changed("header-size") {
		p.params.HeaderSize, _ = f.GetInt64("header-size")
	}
	if f.Changed("adaptive") {
		p.params.Adaptive, _ = f.GetBool("adaptive")
	}
	if f.Changed("rate2") {
		p.params.RateS2, _ = f.GetFloat64("rate2")
	}
	if f.Changed("rate3") {
		p.params.RateS3, _ = f.GetFloat64("rate3")
	}
	if f.Changed("replication") {
		p.params.Replication, _ = f.GetInt("replication")
	}
	if err := p.params.Validate(); err != nil {
		return p, err
	}
	p.format, err = cfg.Format()
	return p, err
}
