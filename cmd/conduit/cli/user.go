package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conduitdb/conduit/internal/model"
	"github.com/conduitdb/conduit/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create, list, and delete the users who can log in and receive bearer tokens.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserDeleteCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		scopes   []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user account",
		Example: `  conduit user create --username alice --scopes read,write
  conduit user create --username admin --scopes read,write,admin  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(username, email, password, scopes)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{model.ScopeRead}, "Scopes granted to the user (read, write, admin)")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runUserCreate(username, email, password string, scopes []string) error {
	for _, scope := range scopes {
		if !model.ValidScope(scope) {
			return fmt.Errorf("unknown scope %q (valid: read, write, admin)", scope)
		}
	}

	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hash, err := service.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Scopes:       model.ScopeList(scopes),
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %q with scopes %s\n", username, model.EncodeScopesCSV(user.Scopes))
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background(), 0, 500)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users found. Use 'conduit user create' to create one.")
		return nil
	}

	fmt.Printf("%-20s %-30s %-20s %-8s\n", "USERNAME", "EMAIL", "SCOPES", "ACTIVE")
	fmt.Printf("%-20s %-30s %-20s %-8s\n", "--------", "-----", "------", "------")
	for _, u := range users {
		active := "yes"
		if !u.IsActive {
			active = "no"
		}
		fmt.Printf("%-20s %-30s %-20s %-8s\n",
			u.Username, u.Email, model.EncodeScopesCSV(u.Scopes), active)
	}

	return nil
}

// ---------- user delete ----------

func newUserDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account",
		Long:  "Remove a user account. Outstanding tokens for the user stop resolving immediately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserDelete(args[0])
		},
	}

	return cmd
}

func runUserDelete(username string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.DeleteUser(context.Background(), username); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	fmt.Printf("Deleted user %q\n", username)
	return nil
}
