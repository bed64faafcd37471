// Command tpf-metrics prints a performance report for a talking photo frame
// session log and saves it as a plain-text summary.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/talking-photo-frame/internal/analyzer"
	"github.com/hubenschmidt/talking-photo-frame/internal/config"
	"github.com/hubenschmidt/talking-photo-frame/internal/env"
	"github.com/hubenschmidt/talking-photo-frame/internal/session"
)

const summaryName = "metrics_summary.txt"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(defaultMetricsDir()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tpf-metrics: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(metricsDir string) *cobra.Command {
	var (
		dir     string
		summary string
	)

	cmd := &cobra.Command{
		Use:   "tpf-metrics [log-file]",
		Short: "Analyze a session log (the newest one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveLog(dir, args)
			if err != nil {
				return err
			}

			report, err := analyzer.AnalyzeFile(path)
			if err != nil {
				return err
			}
			text := report.Text()
			fmt.Fprintf(cmd.ErrOrStderr(), "analyzing %s\n", path)
			fmt.Fprint(cmd.OutOrStdout(), text)

			if !cmd.Flags().Changed("summary") {
				summary = filepath.Join(filepath.Dir(path), summaryName)
			}
			if summary == "" {
				return nil
			}
			if err := os.WriteFile(summary, []byte(text), 0o644); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "summary saved to %s\n", summary)
			return nil
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", metricsDir, "directory searched for the newest log when no file is given")
	flags.StringVar(&summary, "summary", "", "summary output path (default metrics_summary.txt beside the log, empty disables)")
	return cmd
}

func resolveLog(dir string, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path, err := session.Latest(dir)
	if errors.Is(err, session.ErrNoLogs) {
		return "", fmt.Errorf("%w; run the frame first or pass a log file", err)
	}
	return path, err
}

// defaultMetricsDir resolves the frame's configured metrics directory,
// anchored at FRAME_HOME or the working directory.
func defaultMetricsDir() string {
	wd, _ := os.Getwd()
	home := env.Str("FRAME_HOME", wd)
	cfg, err := config.Load(env.Str("FRAME_CONFIG", filepath.Join(home, "frame.yaml")))
	if err != nil {
		return filepath.Join(home, "metrics")
	}
	cfg.ResolvePaths(home)
	return cfg.MetricsDir
}
