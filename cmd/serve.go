package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"duelbench/internal/logging"
	"duelbench/internal/refserver"
)

// --- Reference server ---
func makeServeCommand() *cobra.Command {
	var cfg refserver.ServerConfig
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		log, closeLog := logging.New(logging.Config{Level: logLevel, Console: true, Stdout: os.Stdout})
		defer closeLog()

		server, err := refserver.Start(cfg, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		log.Info("shutting down reference server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a reference server answering / and /health, for rehearsing a run locally.",
		Args:  cobra.NoArgs,
		RunE:  runCmdFunc,
	}
	cmd.Flags().StringVar(&cfg.Host, "host", "127.0.0.1", "address to bind")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on")
	cmd.Flags().DurationVar(&cfg.Delay, "delay", 0, "extra latency added to every / response")
	return cmd
}
