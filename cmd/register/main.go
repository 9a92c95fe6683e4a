package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/revaspay/mpesa-relay/internal/config"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
)

// register performs a one-off callback URL registration without starting the
// server
func main() {
	cfg := config.LoadConfig()

	shortCode := flag.String("short-code", cfg.Mpesa.ShortCode, "paybill or till number")
	baseURL := flag.String("callback-base-url", cfg.Mpesa.CallbackBaseURL, "public base URL of the /mpesa routes")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *shortCode == "" || *baseURL == "" {
		logger.Error("short code and callback base URL are required")
		flag.Usage()
		os.Exit(2)
	}

	client := mpesa.NewClient(cfg.Mpesa.BaseURL, cfg.Mpesa.ConsumerKey, cfg.Mpesa.ConsumerSecret, cfg.Mpesa.RequestTimeout)
	tokens := mpesa.NewTokenManager(client, mpesa.NewTokenStore(), mpesa.WithLogger(logger))
	registrar := mpesa.NewRegistrar(tokens, client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := registrar.Register(ctx, *shortCode, *baseURL)
	if err != nil {
		logger.Error("registration failed", "error", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result.Raw); err != nil {
		logger.Error("failed to print response", "error", err)
		os.Exit(1)
	}
}
