package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeeper/internal/auth"
	"github.com/lazypower/memkeeper/internal/store"
)

var userPassword string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account (password from --password or stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		password := userPassword
		if password == "" {
			if password, err = readPassword(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := addUser(cmd.Context(), st, auth.NewHasher(cfg.Auth.BcryptCost), args[0], password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id %d)\n", u.Username, u.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		users, err := st.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		return printUsers(cmd.OutOrStdout(), users)
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "password (read from stdin when omitted)")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}

// readPassword takes the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}

// addUser applies the same checks as POST /register.
func addUser(ctx context.Context, st store.Store, h auth.Hasher, username, password string) (*store.User, error) {
	username, err := auth.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := h.Hash(password)
	if err != nil {
		return nil, err
	}
	return st.CreateUser(ctx, username, hash)
}

func printUsers(w io.Writer, users []store.User) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tPIN\tCREATED")
	for _, u := range users {
		pin := "-"
		if u.HasPIN() {
			pin = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, pin, u.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
