// Command portalctl runs administrative tasks against the portal database.
//
//	portalctl createsuperuser -email root@example.com -password ...
//	portalctl sweep-pending
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"videoportal-backend-go/internal/config"
	"videoportal-backend-go/internal/db"
	"videoportal-backend-go/internal/migrations"
	"videoportal-backend-go/internal/services"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := migrations.Apply(database); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "createsuperuser":
		fs := flag.NewFlagSet("createsuperuser", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		_ = fs.Parse(os.Args[2:])
		accounts := &services.Accounts{
			DB:     database,
			Tokens: services.TokenService{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer},
		}
		user, err := accounts.CreateSuperuser(ctx, *email, *password)
		if err != nil {
			if serr, ok := services.AsServiceError(err); ok && len(serr.Fields) > 0 {
				for field, msg := range serr.Fields {
					log.Printf("%s: %s", field, msg)
				}
				os.Exit(1)
			}
			log.Fatalf("createsuperuser: %v", err)
		}
		fmt.Printf("Superuser %s created (%s)\n", user.Email, user.ID)
	case "sweep-pending":
		m := &services.Maintenance{DB: database, PendingMaxAge: time.Duration(cfg.ActivationTTLSeconds) * time.Second}
		n, err := m.SweepPendingUsers(ctx)
		if err != nil {
			log.Fatalf("sweep-pending: %v", err)
		}
		fmt.Printf("Removed %d pending users\n", n)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: portalctl <createsuperuser|sweep-pending> [flags]")
}
