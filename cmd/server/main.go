package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mnohosten/reactor/pkg/reactive"
	"github.com/mnohosten/reactor/pkg/reactiveauth"
	"github.com/mnohosten/reactor/pkg/transport"
)

// demoItem is the seed data exposed on the "items" collection so a fresh
// checkout has something to watch immediately over /_ws/watch/items, and to
// read over /_snapshot/items or the GraphQL "snapshot" query.
type demoItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	enableGraphQL := flag.Bool("graphql", true, "Enable GraphQL API endpoint (/graphql) and GraphiQL playground (/graphiql)")
	requireAuth := flag.Bool("require-auth", false, "Require a bearer token on /_snapshot and /_ws/watch")
	authSecret := flag.String("auth-secret", "", "Secret used to derive bearer tokens; required with -require-auth")
	flag.Parse()

	config := transport.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.AllowedOrigins = []string{*corsOrigin}
	config.EnableGraphQL = *enableGraphQL

	var auth *reactiveauth.Manager
	if *requireAuth {
		if *authSecret == "" {
			fmt.Fprintln(os.Stderr, "❌ -require-auth set without -auth-secret")
			os.Exit(1)
		}
		m, err := reactiveauth.NewManager([]byte(*authSecret), time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to create auth manager: %v\n", err)
			os.Exit(1)
		}
		auth = m
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				auth.CleanupExpired()
			}
		}()
	}

	registry := transport.NewRegistry()
	items := seedItems()
	transport.Register(registry, "items", items)

	srv := transport.New(config, registry, auth)

	fmt.Printf("🚀 reactor server starting on http://%s:%d\n", config.Host, config.Port)
	fmt.Printf("📡 Snapshot endpoint: /_snapshot/{name}\n")
	fmt.Printf("🔌 WebSocket endpoint: /_ws/watch/{name}\n")
	if config.EnableGraphQL {
		fmt.Println("✅ GraphQL API enabled")
		fmt.Println("   GraphQL endpoint: /graphql")
		fmt.Println("   GraphiQL playground: /graphiql")
	}
	if auth != nil {
		fmt.Println("🔒 Bearer-token auth required on /_snapshot and /_ws/watch")
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Server error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Server shutdown complete")
}

func seedItems() *reactive.MutableSet[string, demoItem] {
	set := reactive.NewMutableSet[string, demoItem](func(i demoItem) string { return i.ID })
	seed := []demoItem{
		{ID: "item-1", Label: "first item", Status: "active"},
		{ID: "item-2", Label: "second item", Status: "active"},
	}
	for _, item := range seed {
		if _, err := set.Add(item); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Warning: failed to seed %s: %v\n", item.ID, err)
		}
	}
	return set
}
