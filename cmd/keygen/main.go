// Command keygen mints a VidForge API key directly against the database.
// It is the bootstrap path: the admin endpoints require an existing key
// with the admin scope, and the first key has to come from somewhere.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

const (
	keyPrefixLen = 8
	rawKeyBytes  = 16
)

var (
	keyName   string
	keyScopes []string
)

var rootCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Mint a VidForge API key",
	Long: `Mint a VidForge API key and store its hash in the database.

The raw key is printed exactly once. Reads the connection string from
the DATABASE_URL environment variable.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueKey(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&keyName, "name", "n", "", "Unique name for the key")
	rootCmd.Flags().StringSliceVarP(&keyScopes, "scopes", "s", []string{"jobs"}, "Scopes to grant (jobs, admin)")
	_ = rootCmd.MarkFlagRequired("name")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func issueKey(ctx context.Context) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             dbURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)

	rawKey, err := newRawKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      keyName,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:keyPrefixLen],
		Scopes:    keyScopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("an API key named %q already exists", keyName)
		}
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("Created API key %q (%s)\n", key.Name, key.ID)
	fmt.Printf("Scopes: %s\n", strings.Join(key.Scopes, ", "))
	fmt.Printf("\n  %s\n\n", rawKey)
	fmt.Println("Store this key somewhere safe. It is not shown again.")
	return nil
}

func newRawKey() (string, error) {
	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "vf_" + hex.EncodeToString(buf), nil
}
