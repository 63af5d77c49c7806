package main

import (
	"fmt"
	"os"

	"github.com/arnavshah/role-allocator-go/internal/config"
	"github.com/arnavshah/role-allocator-go/pkg/auth"
)

func main() {
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <userID>")
		os.Exit(1)
	}

	userID := os.Args[1]
	if cfg.APIMasterSecret == "" {
		fmt.Println("Error: API_MASTER_SECRET not found in environment or .env")
		os.Exit(1)
	}

	key := auth.New(cfg.JWTSecret, cfg.APIMasterSecret).GenerateParticipantKey(userID)
	fmt.Printf("Generated Key for %s:\n%s\n", userID, key)
}
