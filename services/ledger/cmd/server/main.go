package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/ppalomo/hashink/pkg/db"
	"github.com/ppalomo/hashink/pkg/domain"
	"github.com/ppalomo/hashink/services/ledger/internal/store"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("HASHINK_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "hashinkd")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(baseLogger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			baseLogger.Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(log pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hashinkd",
		Short:         "hashinkd runs the request/escrow/settlement engine over HTTP",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			cfg := appConfig{
				Admin:              domain.Account(viper.GetString("admin")),
				Treasury:           domain.Account(viper.GetString("treasury")),
				AllowAdminFinalize: viper.GetBool("admin-finalize"),
				WebhookURL:         viper.GetString("webhook-url"),
				WebhookSecret:      viper.GetString("webhook-secret"),
			}

			var st *store.Store
			if dsn := viper.GetString("database-url"); dsn != "" {
				pool, err := db.Connect(ctx, dsn)
				if err != nil {
					return err
				}
				defer pool.Close()
				st = store.New(pool)
				log.Info("postgres store enabled")
			}

			a, err := newApp(ctx, log, cfg, st)
			if err != nil {
				return err
			}

			listen := viper.GetString("listen")
			srv := &http.Server{Addr: listen, Handler: a.router()}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("listening", "addr", listen, "admin", cfg.Admin, "treasury", cfg.Treasury)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "address to serve the HTTP API on")
	flags.String("database-url", "", "Postgres DSN; state is memory-only when empty")
	flags.String("admin", "admin", "administrator account")
	flags.String("treasury", "treasury", "treasury account receiving platform fees")
	flags.Bool("admin-finalize", false, "let the administrator finalize requests it is not a recipient of")
	flags.String("webhook-url", "", "endpoint to deliver signed event webhooks to")
	flags.String("webhook-secret", "", "shared secret for webhook signatures")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("HASHINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}
