package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/ajoshi-dev/huddle/internal/app"
	"github.com/ajoshi-dev/huddle/internal/archive"
	"github.com/ajoshi-dev/huddle/internal/bus"
	"github.com/ajoshi-dev/huddle/internal/config"
	"github.com/ajoshi-dev/huddle/internal/groupapi"
	"github.com/ajoshi-dev/huddle/internal/session"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.huddle/config.toml)")
	serverFlag := flag.String("server", "", "group service base URL (overrides config)")
	socketFlag := flag.String("socket", "", "channel websocket URL (overrides config)")
	groupFlag := flag.String("group", "", "group to open (required)")
	userFlag := flag.String("user", "", "username (overrides config default)")
	joinFlag := flag.Bool("join", false, "join the group before opening the session")
	createFlag := flag.Bool("create", false, "create the group, then join it")
	expiresFlag := flag.Int("expires", 60, "group lifetime in minutes when creating")
	flag.Parse()

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = config.Path()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *socketFlag != "" {
		cfg.SocketURL = *socketFlag
	}

	user := config.ResolveUser(*userFlag)
	if user == "" {
		fatalf("no user: pass -user or set default_user in %s", cfgPath)
	}
	if err := config.ValidateName(user); err != nil {
		fatalf("%v", err)
	}
	if *groupFlag == "" {
		fatalf("no group: pass -group <name>")
	}

	justJoined, err := prepare(cfg, *groupFlag, user, *createFlag, *joinFlag, *expiresFlag)
	if err != nil {
		fatalf("%v", err)
	}

	var (
		ctrl *session.Controller
		b    *bus.Bus
		db   *archive.DB
	)
	fxApp := fx.New(
		app.Module(app.Params{Group: *groupFlag, User: user, JustJoined: justJoined}, cfg),
		fx.Populate(&ctrl, &b, &db),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = fxApp.Start(startCtx)
	cancel()
	if err != nil {
		fatalf("start: %v", err)
	}

	console := newConsole(ctrl, b, db, *groupFlag, user)
	go console.printLoop()

	done := make(chan struct{})
	go func() {
		console.inputLoop()
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case <-sig:
		fmt.Println()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fatalf("stop: %v", err)
	}
}

// prepare runs the create/join flow against the group service before the
// session opens. Reports whether this run performed a physical join, which
// drives the one-shot JOIN notice.
func prepare(cfg *config.Config, group, user string, create, join bool, expires int) (bool, error) {
	if !create && !join {
		return false, nil
	}
	client := groupapi.New(cfg.ServerURL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Login(ctx, user); err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	if create {
		if _, err := client.Create(ctx, group, user, expires); err != nil {
			if errors.Is(err, groupapi.ErrNameTaken) {
				return false, fmt.Errorf("group name %q is taken", group)
			}
			return false, fmt.Errorf("create group: %w", err)
		}
	}
	if _, err := client.Join(ctx, group, user); err != nil {
		return false, fmt.Errorf("join group: %w", err)
	}
	return true, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
