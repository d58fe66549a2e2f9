package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sizif/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage FTP mirror credentials",
	Long: `Manage stored FTP credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (SIZIF_FTP_LOGIN / SIZIF_FTP_PASSWORD)`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [host]",
	Short: "Store FTP credentials securely",
	Long: `Store FTP credentials for a mirror server in the system keychain
or an encrypted file. You will be prompted for the host (if not
provided), the login and the password.`,
	Example: `  # Interactive login
  sizif auth login

  # Login for a specific server
  sizif auth login ftp.example.com`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [host]",
	Short: "Remove stored credentials",
	Long: `Remove stored FTP credentials. If no host is provided, you will be
shown a list of stored servers to choose from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored servers",
	Long:  `List all stored FTP servers with passwords masked.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("failed to initialize credential manager", err)
	}

	var host string
	if len(args) > 0 {
		host = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if host == "" {
		fmt.Print("FTP host: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fatal("failed to read host", err)
		}
		host = strings.TrimSpace(input)
	}
	if host == "" {
		fatal("host is required", nil)
	}

	if existing, _ := manager.Retrieve(host); existing != nil {
		fmt.Printf("Credentials for %q already exist. Update? (y/N): ", host)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Print("Login: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		fatal("failed to read login", err)
	}
	login := strings.TrimSpace(input)
	if login == "" {
		fatal("login is required", nil)
	}

	fmt.Print("Password: ")
	password, err := readPassword()
	if err != nil {
		fatal("failed to read password", err)
	}
	if password == "" {
		fatal("password is required", nil)
	}

	account := &auth.Account{
		Host:     host,
		Login:    login,
		Password: password,
	}

	if err := manager.Store(account); err != nil {
		fatal("failed to store credentials", err)
	}

	fmt.Printf("Credentials saved for %s\n", host)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("failed to initialize credential manager", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			fatal("failed to remove credentials", err)
		}
		fmt.Println("Credentials removed: " + args[0])
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored servers")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove credentials for %q? (y/N): ", account.Host)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
		if err := manager.Delete(account.Host); err != nil {
			fatal("failed to remove credentials", err)
		}
		fmt.Println("Credentials removed: " + account.Host)
		return
	}

	fmt.Println("Select server to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Host)
	}
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice < 1 || choice > len(accounts) {
		return
	}
	account := accounts[choice-1]
	if err := manager.Delete(account.Host); err != nil {
		fatal("failed to remove credentials", err)
	}
	fmt.Println("Credentials removed: " + account.Host)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("failed to initialize credential manager", err)
	}

	accounts, err := manager.List()
	if err != nil {
		fatal("failed to list servers", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored servers. Use 'sizif auth login' to add one.")
		return
	}

	fmt.Println("Stored servers:")
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Host: %s\n", i+1, sanitized.Host)
		fmt.Printf("   Login: %s\n", sanitized.Login)
		fmt.Printf("   Password: %s\n", sanitized.Password)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
