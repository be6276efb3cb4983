// refresh_smoke.go
//
// End-to-end smoke test of the silent refresh path against an in-process
// mock backend.
//
// Usage:
//   go run test/manual/refresh_smoke.go [-n 25] [-delay 300ms]
//
// What it does:
//   1. Starts mockshop on a random port
//   2. Logs in and persists the token pair to an in-memory store
//   3. Expires every access token on the backend
//   4. Fires n concurrent order reads that all hit 401
//   5. Checks exactly one refresh call was made and every read succeeded
//
// This does NOT require a running server or database.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/erauner12/urshop-admin/internal/admin"
	"github.com/erauner12/urshop-admin/internal/logging"
	"github.com/erauner12/urshop-admin/internal/mockshop"
	"github.com/erauner12/urshop-admin/internal/secretstore"
)

func main() {
	n := flag.Int("n", 25, "concurrent requests")
	delay := flag.Duration("delay", 300*time.Millisecond, "refresh endpoint latency")
	flag.Parse()

	logging.Setup("refresh-smoke", "warn", true)

	fmt.Println("=" + strings.Repeat("=", 69))
	fmt.Println("  Single-flight Refresh Smoke Test")
	fmt.Println("=" + strings.Repeat("=", 69))
	fmt.Println()

	shop, err := mockshop.New(mockshop.Config{JWTSecret: []byte("smoke-secret")})
	check(err, "create mock backend")
	server := httptest.NewServer(shop.Routes())
	defer server.Close()
	fmt.Printf("mock backend: %s\n", server.URL)

	ctx := context.Background()
	app := admin.New(admin.Options{BaseURL: server.URL, Store: secretstore.NewMemory()})
	app.Start(ctx)

	_, err = app.Login(ctx, mockshop.DefaultAdminEmail, mockshop.DefaultAdminPassword)
	check(err, "login")
	before := app.Session()
	fmt.Println("✓ logged in")

	shop.ExpireAccessTokens()
	shop.SetRefreshDelay(*delay)
	fmt.Printf("✓ access tokens expired, refresh latency %s\n", *delay)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, *n)
	for i := range *n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = app.Order(ctx, fmt.Sprintf("o%03d", i%30+1))
		}()
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			fmt.Printf("  request %d failed: %v\n", i, err)
		}
	}
	after := app.Session()

	fmt.Println()
	fmt.Printf("requests:       %d (%d failed) in %s\n", *n, failed, time.Since(start).Round(time.Millisecond))
	fmt.Printf("refresh calls:  %d\n", shop.RefreshCalls())
	fmt.Printf("token rotated:  %v\n", before.RefreshToken != after.RefreshToken)

	if failed > 0 || shop.RefreshCalls() != 1 || before.RefreshToken == after.RefreshToken {
		fmt.Println("\n✗ FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✓ PASSED")
}

func check(err error, what string) {
	if err != nil {
		fmt.Printf("✗ %s: %v\n", what, err)
		os.Exit(1)
	}
}
