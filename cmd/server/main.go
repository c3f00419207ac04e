// Command server runs the chaperone messaging core: REST and WebSocket endpoints over the
// connection registry, moderation gate, delivery engine, approval workflow and policy layer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"chaperone/internal/identity"
	"chaperone/internal/platform/config"
	"chaperone/internal/platform/httpserver"
	"chaperone/internal/platform/logger"
	id "chaperone/pkg/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		mintToken  string
		tokenTTL   time.Duration
	)
	flags := pflag.NewFlagSet("chaperone", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&mintToken, "mint-token", "", "print a development token for participant:role and exit")
	flags.DurationVar(&tokenTTL, "token-ttl", time.Hour, "lifetime of a minted token")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mintToken != "" {
		return mint(cfg, mintToken, tokenTTL)
	}

	log := logger.New(cfg.Log.Level)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpserver.New(cfg.Server.Addr, app.router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chaperone", "addr", cfg.Server.Addr, "store", app.storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown; closing the registry sends
	// each live channel a going-away close.
	app.registry.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func mint(cfg *config.Config, spec string, ttl time.Duration) error {
	pidRaw, roleRaw, ok := strings.Cut(spec, ":")
	if !ok {
		return errors.New("--mint-token expects participant:role")
	}
	pid, err := id.ParseParticipantID(pidRaw)
	if err != nil {
		return err
	}
	role, err := id.ParseRole(roleRaw)
	if err != nil {
		return err
	}
	token, err := identity.NewIssuer(cfg.Identity.SigningKey, cfg.Identity.Issuer).Issue(pid, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
