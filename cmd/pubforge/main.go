// Command pubforge runs the CMS OAuth gateway and post generator.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eringen/pubforge"
)

func main() {
	loadEnvFiles()

	app := pubforge.New(pubforge.FromEnv())

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal(err)
		}
	case sig := <-shutdown:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			log.Fatalf("shutdown: %v", err)
		}
	}
}

// loadEnvFiles overlays .env files onto the process environment, latest wins.
func loadEnvFiles() {
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			log.Printf("could not load %s: %v", file, err)
		}
	}
}
