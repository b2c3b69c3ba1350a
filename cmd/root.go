package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"duelbench/internal/banner"
	"duelbench/internal/config"
)

var (
	cfgFile  string
	logLevel string

	// configErr is kept until a command that needs the config runs
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "duelbench",
	Short: "duelbench - head-to-head load tests of two HTTP servers",
	Long: `
duelbench builds two server implementations on a remote host, benchmarks them
one at a time with wrk over a matrix of endpoints and connection counts, and
compares their throughput.

Typical usage:
    duelbench run --host bench-01 --impl monoio=monoio-http --impl hyper=hyper-http
        Run the full matrix and write results under ./benchmark_results/<timestamp>/.

    duelbench report benchmark_results/20240501-120000
        Recompute the comparison from a finished run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./duelbench.yaml or $HOME/.duelbench/duelbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(makeRunCommand())
	rootCmd.AddCommand(makeReportCommand())
	rootCmd.AddCommand(makeHistoryCommand())
	rootCmd.AddCommand(makeServeCommand())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("duelbench")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.duelbench")
		}
	}
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = errors.Wrap(err, "reading config")
		}
	}
}
