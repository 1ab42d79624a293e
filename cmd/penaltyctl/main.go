// penaltyctl is the ops tool for matchmaking penalties: inspect a user's
// record, hand out a manual ban, lift one early, or reap old rows. It talks
// to the same database as the matchmaker, so changes take effect on the next
// queue join.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/arena-gg/matchmaking/internal/config"
	"github.com/arena-gg/matchmaking/internal/database"
	"github.com/arena-gg/matchmaking/internal/penalty"
)

const usage = `usage:
  penaltyctl history <userId>                    show a user's penalty records
  penaltyctl ban <userId> <duration> [reason]    penalize a user manually (e.g. 24h)
  penaltyctl unban <userId>                      lift a user's active penalties
  penaltyctl cleanup <olderThan>                 delete penalties expired longer than this`

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg := config.Load()
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	store := penalty.NewStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "history":
		runHistory(ctx, store, os.Args[2:])
	case "ban":
		runBan(ctx, store, os.Args[2:])
	case "unban":
		runUnban(ctx, store, os.Args[2:])
	case "cleanup":
		runCleanup(ctx, store, os.Args[2:])
	default:
		log.Fatal(usage)
	}
}

func runHistory(ctx context.Context, store *penalty.Store, args []string) {
	if len(args) != 1 {
		log.Fatal(usage)
	}
	userID := args[0]

	records, err := store.History(ctx, userID, 50)
	if err != nil {
		log.Fatalf("history lookup failed: %v", err)
	}
	if len(records) == 0 {
		fmt.Printf("no penalties on record for %s\n", userID)
		return
	}

	now := time.Now()
	for _, r := range records {
		state := "expired"
		if r.ExpiresAt.After(now) {
			state = "ACTIVE"
		}
		fmt.Printf("%-7s  issued %s  until %s  %s\n",
			state,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.ExpiresAt.Local().Format("2006-01-02 15:04:05"),
			r.Reason)
	}
}

func runBan(ctx context.Context, store *penalty.Store, args []string) {
	if len(args) < 2 {
		log.Fatal(usage)
	}
	userID := args[0]

	duration, err := time.ParseDuration(args[1])
	if err != nil || duration <= 0 {
		log.Fatalf("invalid duration %q (want something like 30m, 24h)", args[1])
	}

	reason := "Manual penalty"
	if len(args) > 2 {
		reason = strings.Join(args[2:], " ")
	}

	if err := store.Add(ctx, userID, duration, reason); err != nil {
		log.Fatalf("ban failed: %v", err)
	}
	fmt.Printf("penalized %s for %s: %s\n", userID, duration, reason)
}

func runUnban(ctx context.Context, store *penalty.Store, args []string) {
	if len(args) != 1 {
		log.Fatal(usage)
	}
	userID := args[0]

	n, err := store.Revoke(ctx, userID)
	if err != nil {
		log.Fatalf("unban failed: %v", err)
	}
	if n == 0 {
		fmt.Printf("%s has no active penalties\n", userID)
		return
	}
	fmt.Printf("lifted %d penalty(ies) for %s\n", n, userID)
}

func runCleanup(ctx context.Context, store *penalty.Store, args []string) {
	if len(args) != 1 {
		log.Fatal(usage)
	}

	olderThan, err := time.ParseDuration(args[0])
	if err != nil || olderThan < 0 {
		log.Fatalf("invalid age %q (want something like 168h)", args[0])
	}

	n, err := store.DeleteExpired(ctx, time.Now().Add(-olderThan))
	if err != nil {
		log.Fatalf("cleanup failed: %v", err)
	}
	fmt.Printf("deleted %d expired penalty rows\n", n)
}
