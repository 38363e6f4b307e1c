package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/crewdesk/relay/internal/config"
	"github.com/crewdesk/relay/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (TOML)")
	flag.Parse()

	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: migrate: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "useradd":
		cmdUserAdd(db, args[1:])
	case "userdel":
		cmdUserDel(db, args[1:])
	case "token":
		cmdToken(db, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relayadm [--config <path>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  useradd <id> <name> [role]   Create or update a user (default role: member)")
	fmt.Fprintln(os.Stderr, "  userdel <id>                 Deactivate a user")
	fmt.Fprintln(os.Stderr, "  token <userId> [ttl]         Issue an access token (default ttl: 720h)")
}

func cmdUserAdd(db *store.DB, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: relayadm useradd <id> <name> [role]")
		os.Exit(1)
	}
	role := "member"
	if len(args) >= 3 {
		role = args[2]
	}
	u := &store.User{ID: args[0], Name: args[1], Role: role, Active: true}
	if err := db.UpsertUser(u); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user %s (%s) active\n", u.ID, u.Name)
}

func cmdUserDel(db *store.DB, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: relayadm userdel <id>")
		os.Exit(1)
	}
	u, err := db.GetUser(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if u == nil {
		fmt.Fprintf(os.Stderr, "error: unknown user %s\n", args[0])
		os.Exit(1)
	}
	u.Active = false
	if err := db.UpsertUser(u); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user %s deactivated\n", u.ID)
}

func cmdToken(db *store.DB, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: relayadm token <userId> [ttl]")
		os.Exit(1)
	}
	ttl := 720 * time.Hour
	if len(args) >= 2 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: bad ttl: %v\n", err)
			os.Exit(1)
		}
		ttl = parsed
	}
	u, err := db.GetUser(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if u == nil {
		fmt.Fprintf(os.Stderr, "error: unknown user %s\n", args[0])
		os.Exit(1)
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(ttl).UnixMilli()
	if err := db.InsertToken(token, u.ID, expiresAt); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token for %s (expires %s):\n%s\n", u.ID, time.UnixMilli(expiresAt).Format(time.RFC3339), token)
}
