package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kmassidik/engagement/internal/common/middleware"
	"github.com/kmassidik/engagement/internal/rating"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ratings over HTTP",
	Long: `Start the rating API: the last run summary, top visitors, single visitor
profiles, and a JWT-protected endpoint to request a new run. With Kafka
configured, run requests are queued for the worker; otherwise they run
inline. Health, readiness and Prometheus metrics are exposed alongside.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags struct {
	port       string
	withWorker bool
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.port, "port", "p", "", "Listen port (overrides SERVICE_PORT)")
	serveCmd.Flags().BoolVar(&serveFlags.withWorker, "with-worker", false, "Also consume rating requests in this process")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	stack, err := connectRating(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer stack.Close()

	if cfg.JWT.Secret == "" {
		log.Warn("JWT_SECRET is empty, run requests are not authenticated")
	}

	handler := rating.NewHandler(stack.service, log)

	mux := http.NewServeMux()
	var httpHandler http.Handler = mux
	httpHandler = middleware.CORS(httpHandler)
	httpHandler = middleware.Logging(log)(httpHandler)
	httpHandler = middleware.Recovery(log)(httpHandler)

	rating.SetupRoutes(mux, handler, cfg.JWT.Secret)

	port := cfg.Service.Port
	if serveFlags.port != "" {
		port = serveFlags.port
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	workerDone := make(chan struct{})
	if serveFlags.withWorker && cfg.Kafka.Enabled() {
		go func() {
			defer close(workerDone)
			consumeRunRequests(workerCtx, stack.service)
		}()
	} else {
		close(workerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Rating API starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-workerDone

	log.Info("Server exited gracefully")
	return nil
}
