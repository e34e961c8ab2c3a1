package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelops/kestrel/internal/vault"
)

func vaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "encrypt, decrypt, and edit vault-protected variable files",
	}
	cmd.AddCommand(vaultEncryptCmd(), vaultDecryptCmd(), vaultViewCmd(), vaultEditCmd(), vaultRekeyCmd())
	return cmd
}

func vaultEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <file>",
		Short: "encrypt a plaintext file in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			plaintext, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			password, err := vaultPassword()
			if err != nil {
				return err
			}
			if vault.IsVaultFile(plaintext) {
				return fmt.Errorf("kestrel: %s is already a vault file", path)
			}
			encrypted, err := vault.Encrypt(plaintext, password)
			if err != nil {
				return err
			}
			return os.WriteFile(path, encrypted, 0600)
		},
	}
}

func vaultDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <file>",
		Short: "decrypt a vault file in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			encrypted, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			password, err := vaultPassword()
			if err != nil {
				return err
			}
			plaintext, err := vault.Decrypt(encrypted, password)
			if err != nil {
				return err
			}
			return os.WriteFile(path, plaintext, 0600)
		},
	}
}

func vaultViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "print a vault file's decrypted contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypted, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			password, err := vaultPassword()
			if err != nil {
				return err
			}
			plaintext, err := vault.Decrypt(encrypted, password)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(plaintext)
			return err
		},
	}
}

func vaultRekeyCmd() *cobra.Command {
	var newPasswordFile string
	cmd := &cobra.Command{
		Use:   "rekey <file>",
		Short: "re-encrypt a vault file under a new password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			encrypted, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			oldPassword, err := vaultPassword()
			if err != nil {
				return err
			}
			if newPasswordFile == "" {
				return fmt.Errorf("kestrel: --new-vault-password-file is required")
			}
			data, err := os.ReadFile(newPasswordFile)
			if err != nil {
				return err
			}
			newPassword := strings.TrimRight(string(data), "\r\n")

			rekeyed, err := vault.Rekey(encrypted, oldPassword, newPassword)
			if err != nil {
				return err
			}
			return os.WriteFile(path, rekeyed, 0600)
		},
	}
	cmd.Flags().StringVar(&newPasswordFile, "new-vault-password-file", "", "file holding the new vault password")
	return cmd
}

// vaultEditCmd decrypts to a scratch file, opens $EDITOR (falling back to
// vi), and re-encrypts on exit if the scratch file changed. The scratch
// file is always removed, including on an editor error or an unchanged
// save that leaves nothing to write back.
func vaultEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <file>",
		Short: "decrypt, edit in $EDITOR, and re-encrypt a vault file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			encrypted, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			password, err := vaultPassword()
			if err != nil {
				return err
			}
			plaintext, err := vault.Decrypt(encrypted, password)
			if err != nil {
				return err
			}

			tmp, err := os.CreateTemp("", "kestrel-vault-*.yml")
			if err != nil {
				return err
			}
			tmpPath := tmp.Name()
			defer os.Remove(tmpPath)

			if _, err := tmp.Write(plaintext); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}

			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vi"
			}
			editCmd := exec.Command(editor, tmpPath)
			editCmd.Stdin = os.Stdin
			editCmd.Stdout = os.Stdout
			editCmd.Stderr = os.Stderr
			if err := editCmd.Run(); err != nil {
				return fmt.Errorf("kestrel: editor exited with an error: %w", err)
			}

			edited, err := os.ReadFile(tmpPath)
			if err != nil {
				return err
			}
			if string(edited) == string(plaintext) {
				return nil
			}

			reencrypted, err := vault.Encrypt(edited, password)
			if err != nil {
				return err
			}
			return os.WriteFile(path, reencrypted, 0600)
		},
	}
}
