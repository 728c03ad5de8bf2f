// devnode runs the in-memory stand-in node for local development. It prints
// a bearer token on startup when a signing secret is configured.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bookfeed/internal/devnode"
	"bookfeed/internal/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8002", "listen address")
	secret := flag.String("secret", "", "HS256 token signing secret (empty disables auth)")
	confirmDelay := flag.Duration("confirm-delay", 500*time.Millisecond, "delay before posted transactions confirm")
	flag.Parse()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	srv := devnode.New(devnode.Options{
		Secret:       []byte(*secret),
		ConfirmDelay: *confirmDelay,
		Logger:       logger,
	})

	if *secret != "" {
		token, err := srv.Token()
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("Bearer token:", token)
	}

	fmt.Println("devnode listening on", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatalf("%v", err)
	}
}
