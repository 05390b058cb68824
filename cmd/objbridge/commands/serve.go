package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"objbridge/server"
)

var (
	flagListen          string
	flagShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo classes",
	Long: `Serve a reference remote object server exposing a demo core singleton
(mmcorej.CMMCore) and a camera class. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&flagShutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown timeout")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := globalConfig.Server.Addr
	if flagListen != "" {
		addr = flagListen
	}

	svr := server.NewServer(globalConfig.ServerOptions(logger)...)
	if err := registerDemo(svr); err != nil {
		return fmt.Errorf("register demo classes: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve("tcp", addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return svr.Shutdown(flagShutdownTimeout)
}
