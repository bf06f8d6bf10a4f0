package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/h3mux/internal/config"
	"example.com/h3mux/internal/handlers/api"
	"example.com/h3mux/internal/logger"
	"example.com/h3mux/internal/router"
	"example.com/h3mux/internal/server"
)

func main() {
	var (
		configPath string
		addr       string
		certFile   string
		keyFile    string
	)
	flag.StringVar(&configPath, "config", "", "Path to the configuration file (TOML or JSON)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&certFile, "cert", "", "Path to the TLS certificate file (overrides config)")
	flag.StringVar(&keyFile, "key", "", "Path to the TLS key file (overrides config)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", configPath, err)
		}
	} else {
		cfg = config.Default()
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if certFile != "" {
		cfg.Server.CertFile = certFile
	}
	if keyFile != "" {
		cfg.Server.KeyFile = keyFile
	}
	if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
		fmt.Fprintln(os.Stderr, "Error: TLS certificate and key are required (-cert/-key or config). Run the certgen tool to provision them.")
		os.Exit(1)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Close()

	rt := router.New(lg)
	api.Register(rt)

	srv := server.New(cfg.Server, rt, lg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		lg.Info("shutting down", logger.LogFields{"signal": sig.String()})
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil {
		lg.Error("server failed", logger.LogFields{"error": err.Error()})
		os.Exit(1)
	}
}
