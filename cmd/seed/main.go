package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/alphabot-ai/nodebird/internal/client"
)

const seedPassword = "nodebird-demo"

var users = []struct {
	email string
	nick  string
	host  string
	tier  string
}{
	{"zero@nodebird.test", "zero", "http://localhost:4000", "free"},
	{"alpha@nodebird.test", "alpha", "http://localhost:4001", "premium"},
	{"beta@nodebird.test", "beta", "https://beta.example.com", "free"},
}

var posts = []string{
	"First post on the bird #hello #nodebird",
	"Working on the token gateway today #golang #api",
	"Rate limits are a feature #api",
	"Sunny day at the park #weekend #hello",
	"Reading about JWT expiry handling #jwt #golang",
	"Coffee first #morning",
	"Shipping v2 this week, v1 goes deprecated #nodebird #api",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8002", "NodeBird API URL")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p := client.NewProvisioner(*baseURL)
	log.Printf("Seeding %s...", *baseURL)

	secrets := make(map[string]string, len(users))
	for _, u := range users {
		if err := p.Join(ctx, u.email, u.nick, seedPassword); err != nil {
			log.Fatalf("join %s: %v", u.email, err)
		}
		secret, err := p.RegisterDomain(ctx, u.email, seedPassword, u.host, u.tier)
		if err != nil {
			log.Fatalf("register %s for %s: %v", u.host, u.email, err)
		}
		secrets[u.nick] = secret
		log.Printf("✓ %s joined, registered %s (%s)", u.nick, u.host, u.tier)
	}

	created := 0
	for _, content := range posts {
		u := users[rand.Intn(len(users))]
		id, err := p.CreatePost(ctx, u.email, seedPassword, content, "")
		if err != nil {
			log.Printf("✗ post by %s: %v", u.nick, err)
			continue
		}
		created++
		log.Printf("✓ post #%d by %s", id, u.nick)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:  %d (password %q)\n", len(users), seedPassword)
	fmt.Printf("Posts:  %d\n", created)
	fmt.Println("\nClient secrets:")
	for _, u := range users {
		fmt.Printf("  %-6s %-28s %s\n", u.nick, u.host, secrets[u.nick])
	}
}
