// Command blockip adds one or more addresses to the block list from the shell.
// Blocking an already-blocked address is skipped with a notice, not an error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"kestrel/internal/blocklist"
	"kestrel/internal/database"
)

func main() {
	reason := flag.String("reason", "", "Reason for blocking the address(es)")
	flag.Parse()

	ips := flag.Args()
	if len(ips) == 0 {
		fmt.Fprintln(os.Stderr, "usage: blockip [--reason <text>] <ip> [<ip> ...]")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}

	ctx := context.Background()
	blocked := 0
	skipped := 0

	for _, ip := range ips {
		created, err := blocklist.Add(ctx, ip, *reason)
		switch {
		case errors.Is(err, blocklist.ErrInvalidAddress):
			log.Warn("Skipping invalid IP address", "ip", ip)
			skipped++
		case err != nil:
			log.Error("Error blocking IP", "ip", ip, "error", err)
			skipped++
		case !created:
			log.Warn("IP address already blocked", "ip", ip)
			skipped++
		default:
			log.Info("Successfully blocked IP", "ip", ip)
			blocked++
		}
	}

	log.Info("Done", "blocked", blocked, "skipped", skipped)
}
