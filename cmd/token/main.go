// Command token mints a bearer token for a chat identity.
// Accounts live outside chat-hub; this is for operators and local clients.
package main

import (
	"chat-hub/auth"
	"chat-hub/domain"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Netflix/go-env"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

type Config struct {
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
}

func main() {
	userID := flag.String("user-id", "", "Identity id carried by the token")
	username := flag.String("username", "", "Display name carried by the token")
	flag.Parse()

	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration, clockwork.NewRealClock())
	token, err := tokens.GenerateToken(domain.Identity{ID: *userID, Username: *username})
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Println(token)
}
