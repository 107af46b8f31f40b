// init_treasury generates a fresh treasury wallet and writes its encrypted
// key file. Prints the public address; the mnemonic is never displayed.
// Usage: init_treasury <key-file>
package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/splitsquad/splitpay/internal/keyvault"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: init_treasury <key-file>")
		os.Exit(2)
	}
	path := os.Args[1]

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(os.Stderr, "error: key file already exists")
		os.Exit(1)
	}

	address, err := generate(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(address)
}

func generate(path string) (string, error) {
	credential, err := promptPassphrase("Enter passphrase: ")
	if err != nil {
		return "", err
	}
	defer clear(credential)

	confirm, err := promptPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	defer clear(confirm)
	if string(credential) != string(confirm) {
		return "", errors.New("passphrases do not match")
	}

	vault := keyvault.New(keyvault.DefaultKDF())
	created, err := vault.CreateWallet(credential)
	if err != nil {
		return "", err
	}
	if err := keyvault.SaveKeyFile(path, created.EncryptedMnemonic); err != nil {
		return "", err
	}
	return created.Address, nil
}

func promptPassphrase(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	return raw, nil
}
