// Command seed-users loads portal accounts into the local role directory.
// The identity provider stays the source of truth; this utility exists for
// bootstrap and test environments.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"opschat/domain"
	"opschat/repositories"

	"github.com/dgraph-io/badger/v4"
)

type seedUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func main() {
	dbPath := flag.String("db", "", "badger database path")
	file := flag.String("file", "users.json", "JSON file with users to load")
	flag.Parse()

	if err := run(*dbPath, *file); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, file string) error {
	if dbPath == "" {
		return fmt.Errorf("missing -db flag")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	var users []seedUser
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	directory := repositories.NewUserDirectory(db)
	for _, u := range users {
		err := directory.Upsert(repositories.User{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Role:        domain.Role(u.Role),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
	}
	fmt.Printf("Loaded %d users into %s\n", len(users), dbPath)
	return nil
}
