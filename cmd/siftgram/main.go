package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"siftgram/internal/app"
)

func main() {
	var cfgPath string
	var digestNow bool
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.BoolVar(&digestNow, "digest-now", false, "generate one digest and exit")
	flag.Parse()

	// Secrets (TELEGRAM_TOKEN, OPENAI_API_KEY) may live in a .env file.
	_ = godotenv.Load()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if digestNow {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		rep, err := a.DigestNow(ctx)
		if err != nil {
			fmt.Println("digest failed:", err)
			_ = a.Close()
			os.Exit(1)
		}
		fmt.Println("digest written:", rep.MarkdownPath)
		_ = a.Close()
		return
	}

	// The app owns its run context; signals request a Stop below instead
	// of canceling it out from under the shutdown sequence.
	if err := a.Start(context.Background()); err != nil {
		fmt.Println("fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	// systemd integration is a no-op outside a unit (no NOTIFY_SOCKET).
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	wctx, wcancel := context.WithCancel(context.Background())
	defer wcancel()
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdog(wctx, interval)
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	reason := app.StopUnknown
	select {
	case s := <-sigs:
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Println("stop:", err)
	}
	if reason == app.StopFatalError && a.Err() != nil {
		fmt.Println("fatal:", a.Err())
		os.Exit(1)
	}
}

// watchdog pings systemd at half the configured WatchdogSec until the
// process is about to exit.
func watchdog(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
