// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/sitewatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if err := config.LoadDotEnv(); err != nil {
		fail(err.Error())
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "; ") {
			fmt.Fprintln(os.Stderr, "✖", line)
		}
		os.Exit(1)
	}
	ok("configuration valid")
	ok("ADDR=" + cfg.Addr)
	ok("STORE=" + cfg.Store)

	switch cfg.Store {
	case "memory":
		warn("STORE=memory: targets and history are lost on restart.")
	case "bolt":
		ok("BOLT_PATH=" + cfg.BoltPath)
	}

	if cfg.TargetsFile != "" {
		if _, err := os.Stat(cfg.TargetsFile); err != nil {
			fail("TARGETS_FILE: " + err.Error())
		}
		ok("TARGETS_FILE=" + cfg.TargetsFile)
	}

	if cfg.TelegramBotToken == "" {
		warn("TELEGRAM_BOT_TOKEN empty: only Slack webhook destinations can receive alerts.")
	} else {
		ok("TELEGRAM_BOT_TOKEN present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: the API accepts cross-origin requests from any origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok(fmt.Sprintf("tick=%s cooldown=%s retention=%s sweep_at=%s UTC",
		cfg.TickInterval, cfg.NotifyCooldown, cfg.RetentionWindow, cfg.SweepAt))
	ok("preflight passed")
}
