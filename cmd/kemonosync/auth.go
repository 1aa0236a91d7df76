package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kemonosync/pkg/auth"
	"kemonosync/pkg/ui"
)

var verifyLogin bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored accounts",
	Long: `Store, list and remove the accounts kemonosync logs in with.

Accounts are kept in the system keyring when one is available, otherwise in
an encrypted file under the user config directory. KEMONO_USERNAME and
KEMONO_PASSWORD are used when nothing is stored.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove a stored account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}

		username := accountName
		if len(args) > 0 {
			username = args[0]
		}
		if username == "" {
			account, err := manager.Resolve("")
			if err != nil {
				return err
			}
			username = account.Username
		}

		if err := manager.Delete(username); err != nil {
			return err
		}
		ui.PrintSuccess("Removed account " + username)
		return nil
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}

		accounts, err := manager.List()
		if err != nil {
			return err
		}
		for i, a := range accounts {
			accounts[i] = auth.SanitizeAccount(a)
		}
		return ui.PrintJSON(accounts)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authListCmd)

	authLoginCmd.Flags().BoolVar(&verifyLogin, "verify", false, "log in to the upstream before storing the account")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	username := accountName
	if len(args) > 0 {
		username = args[0]
	}
	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	password, err := readPassword(reader)
	if err != nil {
		return err
	}

	account := &auth.Account{
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}

	if verifyLogin {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cmd, false)
		if err != nil {
			return err
		}
		if err := a.client.Login(ctx, username, password); err != nil {
			return fmt.Errorf("login as %s failed: %w", username, err)
		}
		account.Hostname = a.cfg.API.Hostname
	}

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}
	ui.PrintSuccess("Stored account " + username)
	return nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise, so passwords can be piped in
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
