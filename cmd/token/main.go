// Command token mints an operator JWT for the diagnosis history endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"wheatleaf_backend/internal/platform/config"
	jwtmw "wheatleaf_backend/internal/platform/jwt"
)

func main() {
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	exp := cfg.JWT.TTL
	if *ttl > 0 {
		exp = *ttl
	}

	token, err := jwtmw.NewGenerator(cfg.JWT.Secret, cfg.JWT.Issuer, exp).GenerateToken(*subject, jwtmw.ScopeHistoryRead)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(exp).UTC().Format(time.RFC3339))
}
