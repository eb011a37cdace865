// Command gridctl checks grid schemas and spreadsheets offline and issues
// development tokens for the datagrid API.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; the token command reads JWT_SECRET from it.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
