/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/models"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key for a user",
	Long:  "Create an API key and print it once. The key is stored hashed and cannot be recovered later.",
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key by its prefix",
	RunE:  runKeysRevoke,
}

var (
	keysCreateEmail     string
	keysCreateName      string
	keysCreateExpiresIn string
	keysRevokePrefix    string
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysCreateCmd.Flags().StringVar(&keysCreateEmail, "email", "", "Owner's login email (required)")
	keysCreateCmd.Flags().StringVar(&keysCreateName, "name", "", "Key name, e.g. the consuming system (required)")
	keysCreateCmd.Flags().StringVar(&keysCreateExpiresIn, "expires-in", "", "Lifetime as a Go duration, e.g. 720h (never expires when omitted)")
	keysCreateCmd.MarkFlagRequired("email")
	keysCreateCmd.MarkFlagRequired("name")

	keysRevokeCmd.Flags().StringVar(&keysRevokePrefix, "prefix", "", "Key prefix as shown in key listings (required)")
	keysRevokeCmd.MarkFlagRequired("prefix")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	var expiresIn time.Duration
	if keysCreateExpiresIn != "" {
		var err error
		expiresIn, err = time.ParseDuration(keysCreateExpiresIn)
		if err != nil {
			return fmt.Errorf("parse --expires-in: %w", err)
		}
		if expiresIn <= 0 {
			return fmt.Errorf("--expires-in must be positive")
		}
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	var user models.User
	if err := database.First(&user, "email = ?", keysCreateEmail).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no user with email %s", keysCreateEmail)
		}
		return fmt.Errorf("look up user: %w", err)
	}

	plaintext, apiKey, err := auth.GenerateAPIKey(user.ID, keysCreateName, expiresIn)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := database.Create(apiKey).Error; err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Printf("created key %q for %s\n\n", apiKey.Name, user.Email)
	fmt.Printf("  %s\n\n", plaintext)
	fmt.Printf("Store it now; only the hash is kept.\n")
	if apiKey.ExpiresAt != nil {
		fmt.Printf("Expires %s.\n", apiKey.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	var apiKey models.APIKey
	if err := database.First(&apiKey, "key_prefix = ? AND revoked_at IS NULL", keysRevokePrefix).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no active key with prefix %s", keysRevokePrefix)
		}
		return fmt.Errorf("look up key: %w", err)
	}

	now := time.Now()
	if err := database.Model(&apiKey).Update("revoked_at", now).Error; err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	fmt.Printf("revoked key %q (%s)\n", apiKey.Name, apiKey.KeyPrefix)
	return nil
}
