// migrate runs the embedded schema migrations; use go run ./cmd/migrate -direction up|down.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/gso-inventory-auth/internal/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	_ = godotenv.Load()
	dsn := database.DSN(os.Getenv("DB_USER"), os.Getenv("DB_PASS"), os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"))
	if os.Getenv("DB_HOST") == "" || os.Getenv("DB_NAME") == "" {
		fmt.Fprintln(os.Stderr, "DB_HOST and DB_NAME must be set; create a .env or export them")
		os.Exit(1)
	}
	if err := database.Migrate(dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
