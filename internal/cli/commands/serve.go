package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/quill/internal/server"
	"github.com/leapstack-labs/quill/internal/watch"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rendered templates over HTTP",
		Long: `Start an HTTP server that renders templates on request.

Endpoints:
  GET  /healthz            Liveness check
  GET  /templates          Template names
  GET  /templates/<name>   Parameters, returns and macros of a template
  GET  /render/<name>      Render with query parameters
  POST /render/<name>      Render with a JSON or form body
  GET  /events             Server-sent events naming changed templates

With --watch, edited templates are recompiled on their next request and
edited function files are reloaded.`,
		Example: `  # Serve on the default address
  quill serve

  # Serve on all interfaces and follow file changes
  quill serve --addr :8080 --watch

  # Render a template
  curl 'http://127.0.0.1:8080/render/mail/welcome.html?name=Ada'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("addr", "", "Address to listen on (default: 127.0.0.1:8080)")
	cmd.Flags().Bool("watch", false, "Watch templates and function files for changes")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg.Server
	p := cmdCtx.Project
	srvCfg := server.Config{
		Engine:          p.Engine,
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxBody:         cfg.MaxBody,
		Logger:          cmdCtx.Logger,
	}
	if cfg.Watch {
		srvCfg.Watcher = func(notify watch.Handler) *watch.Watcher {
			return p.Watcher(cmdCtx.Logger, notify)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx.Renderer.Println("Serving templates on http://" + cfg.Addr)
	cmdCtx.Renderer.Println(cmdCtx.Renderer.Muted("Press Ctrl+C to stop"))
	return server.New(srvCfg).Serve(ctx)
}
