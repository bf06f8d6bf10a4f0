package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"example.com/h3mux/internal/client"
	"example.com/h3mux/internal/config"
	"example.com/h3mux/internal/logger"
)

func main() {
	var (
		configPath string
		addr       string
		insecure   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to the configuration file (TOML or JSON)")
	flag.StringVar(&addr, "addr", "", "Server address (overrides config)")
	flag.BoolVar(&insecure, "insecure", false, "Accept self-signed server certificates")
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
		cfg.Client.Address = addr
		cfg.Client.Authority = addr
	}
	if insecure {
		t := true
		cfg.Client.InsecureSkipVerify = &t
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Close()

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{"/api/status", "/api/data"}
	}

	c, err := client.Dial(cfg.Client, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	failures := 0
	for _, path := range paths {
		if err := fetch(c, path); err != nil {
			fmt.Fprintf(os.Stderr, "GET %s failed: %v\n", path, err)
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func fetch(c *client.Client, path string) error {
	resp, err := c.Get(context.Background(), path)
	if err != nil {
		return err
	}

	fmt.Printf("GET %s -> %d\n", path, resp.Status)
	ct, _ := resp.Header("content-type")
	if isJSON(ct) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body, "  ", "  "); err == nil {
			fmt.Printf("  %s\n", pretty.String())
			return nil
		}
	}
	fmt.Printf("  %s\n", resp.Body)
	return nil
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
