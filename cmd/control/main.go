package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/config"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// control is an operator CLI for one-off admin tasks that don't belong
// behind the HTTP API: resetting a password, inspecting a user, or
// minting a registration code without going through /admin/registration-code.
// Adapted from the teacher's cmd/control, which covered the same ground
// for tenant accounts; tenant commands (create-tenant, rotate-secret,
// fix-membership) have no analog here since enrollgate has no tenancy.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: control <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  reset-password   Overwrite a user's password")
		fmt.Println("  check-user       Print a user's stored record")
		fmt.Println("  create-code      Mint a registration code")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer pool.Close()

	credentials := storage.NewCredentialStore(pool, auth.NewBcryptHasher())

	switch os.Args[1] {
	case "reset-password":
		resetPasswordCmd(ctx, credentials)
	case "check-user":
		checkUserCmd(ctx, credentials)
	case "create-code":
		createCodeCmd(ctx, credentials)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func resetPasswordCmd(ctx context.Context, credentials *storage.CredentialStore) {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "new password")
	fs.Parse(os.Args[2:])

	if *username == "" || *password == "" {
		fmt.Println("Error: --username and --password are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	user, err := credentials.GetUserByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("lookup user: %v", err)
	}
	if err := credentials.SetPassword(ctx, user.ID, *password); err != nil {
		log.Fatalf("set password: %v", err)
	}
	fmt.Printf("password reset for %s (id=%d)\n", *username, user.ID)
}

func checkUserCmd(ctx context.Context, credentials *storage.CredentialStore) {
	fs := flag.NewFlagSet("check-user", flag.ExitOnError)
	username := fs.String("username", "", "username")
	fs.Parse(os.Args[2:])

	if *username == "" {
		fmt.Println("Error: --username is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	user, err := credentials.GetUserByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("lookup user: %v", err)
	}
	fmt.Printf("id=%d username=%s role=%s active=%t totp_required=%t tags=%s\n",
		user.ID, user.Username, user.Role, user.IsActive, user.TOTPRequired, strings.Join(user.Tags, ","))
}

func createCodeCmd(ctx context.Context, credentials *storage.CredentialStore) {
	fs := flag.NewFlagSet("create-code", flag.ExitOnError)
	role := fs.String("role", "student", "target role (student|teacher|admin)")
	maxUses := fs.Int("max-uses", 1, "number of times the code can be redeemed")
	ttl := fs.Duration("ttl", 7*24*time.Hour, "how long the code stays valid")
	tags := fs.String("tags", "", "comma-separated tags assigned to accounts created with this code")
	fs.Parse(os.Args[2:])

	var tagList []string
	if *tags != "" {
		tagList = strings.Split(*tags, ",")
	}

	code, err := credentials.CreateRegistrationCode(ctx, storage.Role(*role), *maxUses, tagList, *ttl)
	if err != nil {
		log.Fatalf("create registration code: %v", err)
	}
	fmt.Printf("code=%s role=%s max_uses=%d expires_at=%s\n", code.Code, code.TargetRole, code.MaxUses, code.ExpiresAt.Format(time.RFC3339))
}
