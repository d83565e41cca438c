// cmd/tokengen/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tvbridge/pkg/jwt"
)

// Выпускает Bearer токен для прямого API (/order, /balance и т.д.)
func main() {
	_ = godotenv.Load()

	var (
		secret = flag.String("secret", os.Getenv("API_JWT_SECRET"), "HS256 secret, defaults to API_JWT_SECRET")
		client = flag.String("client", "", "client name stored in the sub claim")
		ttl    = flag.Duration("ttl", 30*24*time.Hour, "token lifetime, 0 for a token without expiry")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("secret is empty: set API_JWT_SECRET or pass -secret")
	}
	if strings.TrimSpace(*client) == "" {
		fatal("client is required: pass -client")
	}

	token, err := jwt.GenerateToken(*secret, *client, *ttl)
	if err != nil {
		fatal(err.Error())
	}

	if *ttl > 0 {
		fmt.Fprintf(os.Stderr, "token for %s expires at %s\n", *client, time.Now().Add(*ttl).Format(time.RFC3339))
	}
	fmt.Println(token)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "tokengen:", msg)
	os.Exit(1)
}
