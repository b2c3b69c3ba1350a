package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"duelbench/internal/config"
	"duelbench/internal/report"
	"duelbench/internal/results"
	"duelbench/internal/stats"
)

type reportConfig struct {
	plain bool
	write bool
}

func makeReportCommand() *cobra.Command {
	var opts reportConfig
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		rep, dir, err := rebuildReport(args[0])
		if err != nil {
			return err
		}
		if opts.plain {
			fmt.Print(report.RenderText(rep))
		} else {
			fmt.Println(report.RenderConsole(rep))
		}
		if opts.write {
			path := filepath.Join(dir, "report.txt")
			if err := report.WriteText(path, rep); err != nil {
				return err
			}
			fmt.Printf("Report saved to %s\n", path)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "report <run-dir|results.csv>",
		Short: "Recompute the comparison report from a results CSV.",
		Long: `Recompute the comparison report from a results CSV.

Implementation order and endpoints come from the config.yaml saved next to the
CSV; without it, implementations are taken in order of appearance.`,
		Args: cobra.ExactArgs(1),
		RunE: runCmdFunc,
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print without colors or rounded borders")
	cmd.Flags().BoolVar(&opts.write, "write", false, "also write report.txt next to the CSV")
	return cmd
}

// rebuildReport returns the report and the run directory it belongs to.
func rebuildReport(path string) (stats.Report, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return stats.Report{}, "", err
	}
	csvPath, dir := path, filepath.Dir(path)
	if info.IsDir() {
		csvPath, dir = filepath.Join(path, "results.csv"), path
	}

	rows, err := results.ReadCSV(csvPath)
	if err != nil {
		return stats.Report{}, dir, err
	}

	labels := stats.Implementations(rows)
	var endpoints []string
	if snap, ok := loadSnapshot(filepath.Join(dir, "config.yaml")); ok {
		labels = labels[:0]
		for _, impl := range snap.Implementations {
			labels = append(labels, impl.Label)
		}
		endpoints = snap.Endpoints
	}
	if len(labels) > 2 {
		return stats.Report{}, dir, errors.Newf("%s holds %d implementations, expected two", csvPath, len(labels))
	}
	for len(labels) < 2 {
		labels = append(labels, "")
	}
	return stats.Compare(rows, labels[0], labels[1], endpoints), dir, nil
}

func loadSnapshot(path string) (config.RunConfig, bool) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return config.RunConfig{}, false
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.RunConfig{}, false
	}
	return cfg, true
}
