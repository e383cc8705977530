package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/verdandi/internal/models"
)

func setupKeyDB(t *testing.T) (*gorm.DB, *models.User) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.User{}, &models.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        "keys@example.com",
		PasswordHash: "x",
		Role:         models.RoleEditor,
	}
	if err := database.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	return database, user
}

func TestGenerateAPIKeyShape(t *testing.T) {
	plaintext, key, err := GenerateAPIKey("u1", "ci", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}

	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		t.Errorf("plaintext %q missing %q prefix", plaintext, APIKeyPrefix)
	}
	if len(key.KeyPrefix) != 11 {
		t.Errorf("KeyPrefix length = %d, want 11", len(key.KeyPrefix))
	}
	if !strings.HasPrefix(plaintext, key.KeyPrefix) {
		t.Errorf("KeyPrefix %q is not a prefix of the plaintext", key.KeyPrefix)
	}
	if key.KeyHash == "" || strings.Contains(plaintext, key.KeyHash) {
		t.Error("KeyHash empty or leaked into plaintext")
	}
	if key.ExpiresAt != nil {
		t.Errorf("zero expiresIn should mean no expiry, got %v", key.ExpiresAt)
	}

	_, bounded, err := GenerateAPIKey("u1", "temp", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if bounded.ExpiresAt == nil {
		t.Error("expected expiry to be set")
	}
}

func TestValidateAPIKeyLifecycle(t *testing.T) {
	database, user := setupKeyDB(t)

	plaintext, key, err := GenerateAPIKey(user.ID, "ci", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := database.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	claims, err := ValidateAPIKey(database, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("claims user = %q, want %q", claims.UserID, user.ID)
	}
	if claims.Role != string(models.RoleEditor) {
		t.Errorf("claims role = %q, want editor", claims.Role)
	}

	if _, err := ValidateAPIKey(database, "vd_not_a_real_key"); err != ErrAPIKeyNotFound {
		t.Errorf("unknown key error = %v, want ErrAPIKeyNotFound", err)
	}

	if err := RevokeAPIKey(database, key.ID, user.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := ValidateAPIKey(database, plaintext); err != ErrAPIKeyRevoked {
		t.Errorf("revoked key error = %v, want ErrAPIKeyRevoked", err)
	}
}

func TestValidateAPIKeyExpired(t *testing.T) {
	database, user := setupKeyDB(t)

	plaintext, key, err := GenerateAPIKey(user.ID, "expired", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	key.ExpiresAt = &past
	if err := database.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	if _, err := ValidateAPIKey(database, plaintext); err != ErrAPIKeyExpired {
		t.Errorf("expired key error = %v, want ErrAPIKeyExpired", err)
	}
}

func TestValidateAPIKeySuspendedUser(t *testing.T) {
	database, user := setupKeyDB(t)

	plaintext, key, err := GenerateAPIKey(user.ID, "ci", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := database.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}
	if err := database.Model(user).Update("suspended", true).Error; err != nil {
		t.Fatalf("suspend user: %v", err)
	}

	if _, err := ValidateAPIKey(database, plaintext); err == nil {
		t.Error("expected suspended user's key to be rejected")
	}
}

func TestRevokeAPIKeyWrongOwner(t *testing.T) {
	database, user := setupKeyDB(t)

	_, key, err := GenerateAPIKey(user.ID, "ci", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := database.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	if err := RevokeAPIKey(database, key.ID, uuid.NewString()); err != ErrAPIKeyNotFound {
		t.Errorf("foreign revoke error = %v, want ErrAPIKeyNotFound", err)
	}
}
