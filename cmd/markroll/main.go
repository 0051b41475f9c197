// Command markroll is a terminal front end for taking attendance for one
// class session against the classroll API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classroll/internal/config"
	"classroll/internal/logging"
	"classroll/internal/marking"
	"classroll/internal/portalclient"
)

func main() {
	cfg := config.Load()

	sessionID := flag.Int64("session", 0, "class session id")
	baseURL := flag.String("url", cfg.PortalURL, "API base URL")
	token := flag.String("token", cfg.PortalToken, "teacher bearer token (or PORTAL_TOKEN)")
	flag.Parse()

	log := logging.Must(cfg.Env)
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("detail", w))
	}

	if *sessionID <= 0 || *token == "" {
		fmt.Fprintln(os.Stderr, "usage: markroll -session <id> [-token <jwt>] [-url <base>]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := portalclient.New(*baseURL, cfg.PortalTimeout)
	sess := marking.NewSession(marking.Actor{Token: *token}, *sessionID, client, client)
	defer sess.Close()

	if err := sess.Load(ctx); err != nil {
		log.Error("load roster failed", zap.Int64("session_id", *sessionID), zap.Error(err))
		fmt.Fprintf(os.Stderr, "could not load the class roster: %v\n", err)
		os.Exit(1)
	}

	sh := &shell{sess: sess, out: os.Stdout}
	if err := sh.run(ctx, os.Stdin); err != nil {
		log.Error("shell stopped", zap.Error(err))
		os.Exit(1)
	}
	if sess.Phase() != marking.PhaseSubmitted && sess.MarkedCount() > 0 {
		log.Info("left without submitting", zap.Int64("session_id", *sessionID), zap.Int("marked", sess.MarkedCount()))
	}
}
