// tokengen mints a signed bearer token with the service's configured secret,
// for operators debugging protected endpoints.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		subject string
		roles   []string
		ttl     time.Duration
		secret  string
	)

	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&subject, "subject", "", "token subject (username)")
	flagSet.StringSliceVar(&roles, "roles", []string{domain.RoleUser}, "comma-separated roles")
	flagSet.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	flagSet.StringVar(&secret, "secret", "", "signing secret (default: AUTH_JWT_SECRET from the service config)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if subject == "" {
		return errors.New("--subject is required")
	}
	if secret == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		secret = cfg.Auth.JWTSecret
	}
	if len(secret) < config.MinSecretLength {
		return fmt.Errorf("secret must be at least %d bytes", config.MinSecretLength)
	}

	codec, err := auth.NewTokenCodec([]byte(secret))
	if err != nil {
		return err
	}
	token, err := codec.Issue(subject, roles, ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token.Raw)
	fmt.Fprintf(out, "subject: %s\nroles:   %s\nexpires: %s\n",
		token.Claims.Subject,
		strings.Join(token.Claims.Roles, ","),
		token.Claims.ExpiresAt.Format(time.RFC3339),
	)
	return nil
}
