// Command whisperd runs the messaging server: it accepts TCP connections,
// authenticates clients by Ed25519 challenge-response, brokers ciphertext
// between connected peers, and durably queues ciphertext for offline
// recipients.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/auth"
	"github.com/duskrelay/whisperd/pkg/config"
	"github.com/duskrelay/whisperd/pkg/connection"
	"github.com/duskrelay/whisperd/pkg/handler"
	"github.com/duskrelay/whisperd/pkg/router"
	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/store"
	"github.com/duskrelay/whisperd/pkg/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("whisperd")

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	registry := session.New(loggerFactory)
	users := store.NewUserStore(pool)
	pending := store.NewPendingStore(pool)

	authSvc := auth.NewService(registry, users, loggerFactory)
	userSvc := user.NewService(users, registry, loggerFactory)
	routerSvc := router.NewRouter(registry, pending, userSvc, loggerFactory)

	h := handler.New(authSvc, userSvc, routerSvc, registry, loggerFactory)
	listener := connection.NewListener(cfg.ListenAddr, registry, h, loggerFactory)

	log.Infof("listening on %s", cfg.ListenAddr)
	return listener.Serve(ctx)
}
