/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/models"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Long:  "Create an account directly in the database, e.g. the first admin on a fresh install",
	RunE:  runUsersCreate,
}

var (
	usersCreateEmail    string
	usersCreatePassword string
	usersCreateRole     string
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersCreateCmd)

	usersCreateCmd.Flags().StringVar(&usersCreateEmail, "email", "", "Login email (required)")
	usersCreateCmd.Flags().StringVar(&usersCreatePassword, "password", "", "Password (required)")
	usersCreateCmd.Flags().StringVar(&usersCreateRole, "role", string(models.RoleViewer), "Role: admin, editor or viewer")
	usersCreateCmd.MarkFlagRequired("email")
	usersCreateCmd.MarkFlagRequired("password")
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !models.ValidRole(usersCreateRole) {
		return fmt.Errorf("invalid role %q (admin, editor or viewer)", usersCreateRole)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	var existing models.User
	if err := database.First(&existing, "email = ?", usersCreateEmail).Error; err == nil {
		return fmt.Errorf("a user with email %s already exists", usersCreateEmail)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check existing user: %w", err)
	}

	hash, err := auth.HashPassword(usersCreatePassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        usersCreateEmail,
		PasswordHash: hash,
		Role:         models.RoleName(usersCreateRole),
	}
	if err := database.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
