package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/arnavshah/referee-scheduler-api/pkg/auth"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env from project root
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	ttl := flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	name := flag.String("name", "", "display name stored in the token")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: keygen [-ttl 24h] [-name \"League Admin\"] <actorID>")
		os.Exit(1)
	}

	actorID := flag.Arg(0)
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: JWT_SECRET not found in environment or .env")
		os.Exit(1)
	}

	token, err := auth.CreateToken([]byte(secret), actorID, *name, *ttl)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Printf("Generated token for %s (valid %s):\n%s\n", actorID, *ttl, token)
}
