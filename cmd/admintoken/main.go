package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"selfiebot/internal/servicetoken"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		exitErr(fmt.Errorf("load .env: %w", err))
	}
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		exitErr(err)
	}
}

// run mints one admin token for the webhook admin endpoints.
func run(args []string, getenv func(string) string, out io.Writer) error {
	flags := flag.NewFlagSet("admintoken", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	issuer := flags.String("issuer", "selfiebot-admin", "token issuer, must be in adminJwtIssuers")
	subject := flags.String("subject", "", "operator name recorded in the sub claim")
	ttl := flags.Duration("ttl", servicetoken.DefaultTokenTTL, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("usage: admintoken [-issuer name] [-subject who] [-ttl 15m]: %w", err)
	}
	secret := strings.TrimSpace(getenv("ADMIN_JWT_SECRET"))
	if secret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}
	if *ttl > 24*time.Hour {
		return errors.New("ttl must not exceed 24h")
	}
	signer, err := servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
		Secret: secret,
		Issuer: *issuer,
		TTL:    *ttl,
	})
	if err != nil {
		return err
	}
	token, err := signer.Sign(servicetoken.AdminAudience, *subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
	os.Exit(1)
}
