package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorlane/tutorlane-api/internal/models"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
)

type mockUserRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = fmt.Sprintf("u%d", len(m.users)+1)
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if user, ok := m.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (m *mockUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	clone := *token
	m.refreshTokens[token.Token] = &clone
	return nil
}

func (m *mockUserRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (m *mockUserRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockUserRepo) addUser(id, email, password string, role models.UserRole, active bool) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	m.users[id] = &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test User",
		Role:         role,
		Active:       active,
	}
}

func newAuthServiceForTest(repo *mockUserRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "tutorlane-api",
	})
}

func TestAuthLogin(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	require.NotNil(t, repo.users["u1"].LastLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthRegister(t *testing.T) {
	repo := newMockUserRepo()
	svc := newAuthServiceForTest(repo)

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "nina@example.com",
		Password: "longenough",
		FullName: "Nina Novak",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	stored := repo.users[resp.User.ID]
	require.NotNil(t, stored)
	assert.True(t, stored.Active)
	// The stored hash verifies against the supplied password and is not plaintext.
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("longenough")))

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "nina@example.com", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "nina@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "nina@example.com",
		Password: "longenough",
		FullName: "Nina Novak",
	})
	assertAppError(t, err, appErrors.ErrConflict.Code)
}

func TestAuthRegisterValidation(t *testing.T) {
	svc := newAuthServiceForTest(newMockUserRepo())

	cases := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"missing email", models.RegisterRequest{Password: "longenough", FullName: "Nina"}},
		{"bad email", models.RegisterRequest{Email: "nope", Password: "longenough", FullName: "Nina"}},
		{"short password", models.RegisterRequest{Email: "nina@example.com", Password: "short", FullName: "Nina"}},
		{"missing name", models.RegisterRequest{Email: "nina@example.com", Password: "longenough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			assertAppError(t, err, appErrors.ErrValidation.Code)
		})
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "wrong"})
	assertAppError(t, err, appErrors.ErrInvalidCredentials.Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assertAppError(t, err, appErrors.ErrInvalidCredentials.Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, false)
	svc := newAuthServiceForTest(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "secret123"})
	assertAppError(t, err, appErrors.ErrInactiveAccount.Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked, so a replay fails.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assertAppError(t, err, appErrors.ErrUnauthorized.Code)
}

func TestAuthRefreshExpiredToken(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := newAuthServiceForTest(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	assertAppError(t, err, appErrors.ErrUnauthorized.Code)
}

func TestAuthLogout(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "u1"))
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	err = svc.Logout(context.Background(), login.RefreshToken, "u2")
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestAuthValidateTokenRejectsTampering(t *testing.T) {
	repo := newMockUserRepo()
	repo.addUser("u1", "alex@example.com", "secret123", models.RoleStudent, true)
	svc := newAuthServiceForTest(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(login.AccessToken + "x")
	assertAppError(t, err, appErrors.ErrUnauthorized.Code)

	other := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: 15 * time.Minute,
	})
	_, err = other.ValidateToken(login.AccessToken)
	assertAppError(t, err, appErrors.ErrUnauthorized.Code)
}
