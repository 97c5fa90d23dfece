package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/pkg/config"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.Email == email {
		cp := *m.userByEmail
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		cp := *m.userByEmail
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(context.Context, string, time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "registrar-api",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
}

func hashedPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginRejectsBadCredentials(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID:           "u1",
		Email:        "prof@univ.ac.kr",
		PasswordHash: hashedPassword(t, "correct-horse"),
		Role:         models.RoleProfessor,
		Active:       true,
	}}
	svc := NewAuthService(repo, nil, nil, nil, testJWTConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@univ.ac.kr", Password: "whatever"})
	assert.Error(t, err, "unknown account")

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "prof@univ.ac.kr", Password: "wrong"})
	assert.Error(t, err, "wrong password")

	repo.userByEmail.Active = false
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "prof@univ.ac.kr", Password: "correct-horse"})
	assert.Error(t, err, "deactivated account")
}

func TestAuthServiceLoginValidatesPayload(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, nil, testJWTConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Error(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "a@b.c"})
	assert.Error(t, err)
}

func TestAuthServiceValidateToken(t *testing.T) {
	cfg := testJWTConfig()
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, nil, cfg)

	sign := func(secret string, expiresAt time.Time) string {
		claims := models.JWTClaims{
			UserID: "u1",
			Role:   models.RoleStudent,
			Email:  "stu@univ.ac.kr",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    cfg.Issuer,
				Subject:   "u1",
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	claims, err := svc.ValidateToken(sign(cfg.Secret, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	_, err = svc.ValidateToken(sign(cfg.Secret, time.Now().Add(-time.Minute)))
	assert.Error(t, err, "expired token")

	_, err = svc.ValidateToken(sign("other-secret", time.Now().Add(time.Hour)))
	assert.Error(t, err, "wrong signing key")

	_, err = svc.ValidateToken("garbage.token.value")
	assert.Error(t, err)
}
