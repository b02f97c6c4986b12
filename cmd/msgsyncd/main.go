package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MomenMushtaha/MessageAI-sub000/internal/app"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		addrFlag = flag.String("addr", "", "debug HTTP listen address (host)")
		portFlag = flag.Int("port", 0, "debug HTTP listen port")
		dbFlag   = flag.String("db", "", "local store path")
		cfgFlag  = flag.String("config", "", "path to config file")
		userFlag = flag.String("user", "", "local user id")
	)
	flag.Parse()
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("MSGSYNC_CONFIG")
	}
	cfg := &config.Config{}
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			if !os.IsNotExist(err) || setFlags["config"] {
				log.Fatalf("failed to load config %s: %v", cfgPath, err)
			}
		} else {
			cfg = loaded
		}
	}
	config.ApplyEnvOverrides(cfg)

	// Flags win over config and env when provided explicitly.
	if setFlags["addr"] {
		cfg.Server.Address = *addrFlag
	}
	if setFlags["port"] {
		cfg.Server.Port = *portFlag
	}
	if setFlags["db"] {
		cfg.Server.DBPath = *dbFlag
	}
	userID := *userFlag
	if userID == "" {
		userID = os.Getenv("MSGSYNC_USER")
	}
	if userID == "" {
		log.Fatal("a local user id is required (-user or MSGSYNC_USER)")
	}

	a, err := app.New(cfg, userID, nil)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		log.Fatalf("runtime failure: %v", err)
	}
}
