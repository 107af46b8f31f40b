// rotate_credential re-encrypts an encrypted-mnemonic key file under a new
// passphrase. The mnemonic never changes, so the wallet address is preserved;
// salt and nonce are freshly generated.
// Usage: rotate_credential <key-file>
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
		fmt.Fprintln(os.Stderr, "usage: rotate_credential <key-file>")
		os.Exit(2)
	}
	path := os.Args[1]

	if err := rotate(path); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println("credential rotated")
}

func rotate(path string) error {
	enc, err := keyvault.LoadKeyFile(path)
	if err != nil {
		return err
	}

	oldCredential, err := promptPassphrase("Enter current passphrase: ")
	if err != nil {
		return err
	}
	defer clear(oldCredential)

	vault := keyvault.New(keyvault.DefaultKDF())
	mnemonic, err := vault.DecryptMnemonic(enc, oldCredential)
	if err != nil {
		return err
	}
	defer clear(mnemonic)

	newCredential, err := promptPassphrase("Enter new passphrase: ")
	if err != nil {
		return err
	}
	defer clear(newCredential)

	confirm, err := promptPassphrase("Repeat new passphrase: ")
	if err != nil {
		return err
	}
	defer clear(confirm)
	if string(newCredential) != string(confirm) {
		return errors.New("new passphrases do not match")
	}

	rotated, err := vault.Encrypt(mnemonic, newCredential)
	if err != nil {
		return err
	}
	return keyvault.SaveKeyFile(path, rotated)
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
