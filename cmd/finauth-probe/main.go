// Command finauth-probe runs the full credential handshake against a live
// endpoint and reports what it finds: installation, device registration,
// session creation, the session principal, and the counter snapshot.
//
// State persists in Redis when an address is given (flag or REDIS_ADDR);
// otherwise an embedded miniredis keeps the run self-contained, which means
// every invocation starts from a clean installation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	finauth "github.com/finauthio/finauth"
	"github.com/finauthio/finauth/storage"
)

func main() {
	var (
		baseURL     = flag.String("base-url", "", "remote API base URL")
		apiKey      = flag.String("api-key", "", "API key; FINAUTH_API_KEY env if empty")
		redisAddr   = flag.String("redis-addr", "", "redis address; REDIS_ADDR env or embedded miniredis if empty")
		prefix      = flag.String("prefix", "fa", "redis key prefix")
		description = flag.String("description", "finauth-probe", "device description sent on registration")
		closeAfter  = flag.Bool("close", true, "close the session before exiting")
		timeout     = flag.Duration("timeout", 60*time.Second, "overall deadline for the probe")
	)
	flag.Parse()

	key := *apiKey
	if key == "" {
		key = os.Getenv("FINAUTH_API_KEY")
	}
	if *baseURL == "" || key == "" {
		fmt.Fprintln(os.Stderr, "base-url and api-key are required")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Println("using embedded miniredis (state will not survive this run)")
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := finauth.DefaultConfig()
	cfg.API.BaseURL = *baseURL
	cfg.API.Key = key
	cfg.Session.SelfRenew = false
	cfg.Audit.Enabled = true

	client, err := finauth.New().
		WithConfig(cfg).
		WithStorage(storage.NewRedisStore(rdb, *prefix)).
		WithLogger(finauth.StdLogger{}).
		WithAuditSink(finauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := client.Bootstrap(ctx, *description, nil); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("handshake completed in %s\n", time.Since(start).Round(time.Millisecond))

	stage, err := client.Stage(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stage lookup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("stage: %s\n", stage)

	info, valid, err := client.SessionInfo(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session lookup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session: id=%d valid=%t expires=%s principal=%s %q oauth=%t\n",
		info.ID, valid, info.ExpiresAt.Format(time.RFC3339),
		info.Principal.Kind, info.Principal.DisplayName, info.OAuth)

	if *closeAfter {
		if err := client.CloseSession(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("session closed")
	}

	snap := client.MetricsSnapshot()
	fmt.Println("---- counters ----")
	for id, v := range snap.Counters {
		if v > 0 {
			fmt.Printf("metric %d: %d\n", id, v)
		}
	}
}
