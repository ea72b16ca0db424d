package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sitedyno/urlbot/internal/platform/auth"
	"github.com/sitedyno/urlbot/internal/platform/config"
)

// Mints a token for the shortlink admin API with JWT_SECRET, JWT_ISSUER and
// JWT_TTL from the environment or .env.
func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		log.Fatal("usage: go run ./cmd/tools/mktoken <subject> [role]")
	}
	role := auth.RoleAdmin
	if len(os.Args) == 3 {
		role = os.Args[2]
	}

	cfg := config.Load()
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}
	token, err := ts.Sign(os.Args[1], role)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
