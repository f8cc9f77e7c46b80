// genkey generates the shared secrets houra needs in production.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go >> .env
//
// Prints HOURA_JWT_SECRET and HOURA_CRON_SECRET as dotenv lines. The server
// generates an ephemeral JWT secret when HOURA_JWT_SECRET is unset, but it
// changes on every restart and invalidates all issued tokens. Without
// HOURA_CRON_SECRET the scheduled run trigger stays disabled.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// secretBytes matches the minimum HS256 key length the server accepts.
const secretBytes = 32

func main() {
	for _, name := range []string{"HOURA_JWT_SECRET", "HOURA_CRON_SECRET"} {
		secret, err := newSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generate %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("%s=%s\n", name, secret)
	}
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
