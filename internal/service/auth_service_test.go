package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail         *models.Profile
	userByID            *models.Profile
	findByEmailErr      error
	findByIDErr         error
	registerErr         error
	registered          *models.Profile
	registeredTokens    int
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	bumped              []string
	auditLogs           []*models.AuditLog
	lastLoginUpdated    bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) Register(ctx context.Context, user *models.Profile, initialTokens int) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = user
	m.registeredTokens = initialTokens
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) BumpTokenVersion(ctx context.Context, id string) error {
	m.bumped = append(m.bumped, id)
	for _, user := range []*models.Profile{m.userByEmail, m.userByID} {
		if user != nil && user.ID == id {
			user.TokenVersion++
			if m.userByEmail == m.userByID {
				break
			}
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type fakeSettings map[string]int

func (f fakeSettings) IntValue(ctx context.Context, key string, fallback int) int {
	if v, ok := f[key]; ok {
		return v
	}
	return fallback
}

type fakeTerminator struct {
	disconnected []string
}

func (f *fakeTerminator) DisconnectUser(userID string) int {
	f.disconnected = append(f.disconnected, userID)
	return 2
}

var testAuthConfig = AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour}

func newTestAuthService(repo *mockAuthRepo, terminator sessionTerminator) *AuthService {
	return NewAuthService(repo, fakeSettings{models.SettingInitialStudentTokens: 15}, terminator, nil, validator.New(), zap.NewNop(), testAuthConfig)
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceRegisterStudentGetsInitialTokens(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo, nil)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "Ada@Example.com ",
		Password: "password123",
		FullName: "Ada Lovelace",
		Role:     models.RoleStudent,
	}, models.LoginRequest{IP: "127.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, repo.registered)
	assert.Equal(t, "ada@example.com", repo.registered.Email)
	assert.Equal(t, 15, repo.registeredTokens)
	assert.True(t, repo.registered.IsActive)
	assert.NotEqual(t, "password123", repo.registered.PasswordHash)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRegister, repo.auditLogs[0].Action)
}

func TestAuthServiceRegisterTeacherGetsNoTokens(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "t@example.com", Password: "password123", FullName: "Teach", Role: models.RoleTeacher,
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.registeredTokens)
}

func TestAuthServiceRegisterRejectsAdminRoleAndDuplicates(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{}, nil)
	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@example.com", Password: "password123", FullName: "Admin", Role: models.RoleAdmin,
	}, models.LoginRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	existing := &mockAuthRepo{userByEmail: &models.Profile{ID: "u1", Email: "a@example.com"}}
	_, err = newTestAuthService(existing, nil).Register(context.Background(), models.RegisterRequest{
		Email: "a@example.com", Password: "password123", FullName: "Ann", Role: models.RoleParent,
	}, models.LoginRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	raced := &mockAuthRepo{registerErr: repository.ErrEmailTaken}
	_, err = newTestAuthService(raced, nil).Register(context.Background(), models.RegisterRequest{
		Email: "b@example.com", Password: "password123", FullName: "Bob", Role: models.RoleParent,
	}, models.LoginRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.Profile{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), IsActive: true, Role: models.RoleAdmin}}
	svc := newTestAuthService(repo, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.Profile{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), IsActive: false}}
	svc := newTestAuthService(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceLoginSuspended(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.Profile{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), IsActive: true, IsSuspended: true}}
	svc := newTestAuthService(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.True(t, appErrors.Is(err, appErrors.ErrSuspended))
	assert.Empty(t, repo.refreshTokens)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.Profile{ID: "123", Email: "user@example.com", PasswordHash: hashed(t, "password"), IsActive: true}}
	_, err := newTestAuthService(repo, nil).Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = newTestAuthService(&mockAuthRepo{}, nil).Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceRefreshToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.Profile{ID: "u1", Email: "user@example.com", PasswordHash: "hash", IsActive: true, Role: models.RoleStudent}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token

	svc := newTestAuthService(repo, nil)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceLogoutClosesRealtimeSessions(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	terminator := &fakeTerminator{}
	svc := newTestAuthService(repo, terminator)

	require.NoError(t, svc.Logout(context.Background(), "token", "u1", models.LoginRequest{}))
	assert.True(t, repo.refreshTokens["token"].Revoked)
	assert.Equal(t, []string{"u1"}, terminator.disconnected)
	assert.Equal(t, []string{"u1"}, repo.bumped)

	err := svc.Logout(context.Background(), "token", "u2", models.LoginRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash := hashed(t, "old")
	repo := &mockAuthRepo{userByEmail: &models.Profile{ID: "u1", PasswordHash: oldHash, IsActive: true}}
	svc := newTestAuthService(repo, nil)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, repo.userByEmail.PasswordHash)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestValidateToken(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{}, nil)
	user := &models.Profile{ID: "u1", Email: "user@example.com", Role: models.RoleTeacher}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthenticateRejectsSuspendedAccount(t *testing.T) {
	user := &models.Profile{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, IsActive: true}
	repo := &mockAuthRepo{userByID: user}
	svc := newTestAuthService(repo, nil)
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	user.IsSuspended = true
	_, err = svc.Authenticate(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrSuspended))

	user.IsSuspended = false
	user.IsActive = false
	_, err = svc.Authenticate(context.Background(), token)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthenticateRejectsTokensIssuedBeforeLogout(t *testing.T) {
	user := &models.Profile{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, IsActive: true}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, nil, true)
	svc := NewAuthService(repo, nil, nil, cache, validator.New(), zap.NewNop(), testAuthConfig)
	ctx := context.Background()

	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "token", "u1", models.LoginRequest{}))

	_, err = svc.Authenticate(ctx, token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	fresh, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, fresh)
	assert.NoError(t, err)
}

func TestAuthenticateServesAccountStateFromCache(t *testing.T) {
	user := &models.Profile{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, IsActive: true}
	repo := &mockAuthRepo{userByID: user}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, nil, true)
	svc := NewAuthService(repo, nil, nil, cache, validator.New(), zap.NewNop(), testAuthConfig)
	ctx := context.Background()
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)

	repo.findByIDErr = errors.New("db down")
	_, err = svc.Authenticate(ctx, token)
	assert.NoError(t, err)

	cache.Invalidate(ctx, accountCacheKey("u1"))
	_, err = svc.Authenticate(ctx, token)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestAuthServiceInternalErrorsAreWrapped(t *testing.T) {
	repo := &mockAuthRepo{findByEmailErr: errors.New("db down")}
	_, err := newTestAuthService(repo, nil).Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
