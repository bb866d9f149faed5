// Command devtoken prints a signed bearer token for local testing. The
// secret comes from JWT_SECRET, read the same way the server reads it.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/umar/roomchat/internal/auth"
	"github.com/umar/roomchat/internal/config"
	"github.com/umar/roomchat/internal/models"
)

func main() {
	kind := flag.String("kind", "user", "participant kind: user or client")
	id := flag.String("id", "", "participant id")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	p := models.Participant{Kind: models.ParticipantKind(*kind), ID: *id}
	token, err := auth.GenerateToken(p, *name, cfg.JWTSecret, lifetime)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
