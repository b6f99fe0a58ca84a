// Package main starts the consent service.
//
// This process owns the consent contract lifecycle: drafts, sharing,
// collaborator approval, amendments, and revocation over a JSON HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	consentcmd "github.com/pmyapp/accord/internal/cmd/consent"
)

func main() {
	cfg, err := consentcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CONSENT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consentcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
