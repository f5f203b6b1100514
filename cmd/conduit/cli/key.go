package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys used to authenticate against the Conduit API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyRateLimitCmd())

	return cmd
}

// keyService opens the store and returns a KeyService over it. The caller
// must invoke the returned closer.
func keyService() (*service.KeyService, func(), error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewKeyService(st, logger), func() { st.Close() }, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		clientID  string
		scopes    []string
		ttlDays   int
		rateLimit int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key bound to a client. The raw key is shown once and cannot be retrieved again.",
		Example: `  conduit key create --client reporting --scopes read
  conduit key create --client etl --scopes read,write --ttl-days 90 --rate-limit 300`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(clientID, scopes, ttlDays, rateLimit)
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client the key belongs to (required)")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{model.ScopeRead}, "Scopes granted to the key (read, write, admin)")
	cmd.Flags().IntVar(&ttlDays, "ttl-days", 0, "Days until the key expires (0 = never)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per window for this key (0 = unlimited)")
	cmd.MarkFlagRequired("client")

	return cmd
}

func runKeyCreate(clientID string, scopes []string, ttlDays, rateLimit int) error {
	for _, scope := range scopes {
		if !model.ValidScope(scope) {
			return fmt.Errorf("unknown scope %q (valid: read, write, admin)", scope)
		}
	}

	keys, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	rawKey, key, err := keys.Issue(context.Background(), clientID, model.ScopeList(scopes), ttlDays, rateLimit)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", rawKey)
	fmt.Printf("  Key ID: %s\n", key.KeyID)
	fmt.Printf("  Client: %s\n", key.ClientID)
	fmt.Printf("  Scopes: %s\n", model.EncodeScopesCSV(key.Scopes))
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		clientID   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(clientID, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Only show keys for this client")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(clientID string, jsonOutput bool) error {
	keys, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := keys.List(context.Background(), clientID, 0, 500)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No API keys found. Use 'conduit key create' to create one.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-20s %-8s %-10s\n", "KEY ID", "CLIENT", "SCOPES", "ACTIVE", "EXPIRES")
	fmt.Printf("%-10s %-20s %-20s %-8s %-10s\n", "------", "------", "------", "------", "-------")
	for _, k := range records {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02")
		}
		fmt.Printf("%-10s %-20s %-20s %-8s %-10s\n",
			k.KeyID, k.ClientID, model.EncodeScopesCSV(k.Scopes), active, expires)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key by its key ID",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(keyID string) error {
	keys, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := keys.Revoke(context.Background(), keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q\n", keyID)
	return nil
}

// ---------- key rate-limit ----------

func newKeyRateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate-limit <key-id> <requests>",
		Short: "Change an API key's request budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("requests must be a non-negative integer, got %q", args[1])
			}
			return runKeyRateLimit(args[0], n)
		},
	}

	return cmd
}

func runKeyRateLimit(keyID string, rateLimit int) error {
	keys, closeStore, err := keyService()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := keys.UpdateRateLimit(context.Background(), keyID, rateLimit); err != nil {
		return fmt.Errorf("update rate limit: %w", err)
	}

	fmt.Printf("Set rate limit for key %q to %d requests per window\n", keyID, rateLimit)
	return nil
}
