package auth_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/keystone-auth/keystone/internal/auth"
	"github.com/keystone-auth/keystone/internal/shared"
	"github.com/keystone-auth/keystone/internal/users"
	_ "github.com/keystone-auth/keystone/testing"
)

// memoryRepo enforces the same email-uniqueness guarantee as the Postgres
// constraint, under a mutex so concurrent registrations race safely.
type memoryRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*users.User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[uuid.UUID]*users.User)}
}

func (r *memoryRepo) Create(_ context.Context, user *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return shared.ErrDuplicateEmail
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryRepo) FindByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == users.NormalizeEmail(email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memoryRepo) UpdatePassword(_ context.Context, id uuid.UUID, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.HashedPassword = hashedPassword
	return nil
}

func (r *memoryRepo) UpdateEmail(_ context.Context, id uuid.UUID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.Email = users.NormalizeEmail(email)
	user.IsVerified = false
	return nil
}

func (r *memoryRepo) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.IsVerified = verified
	return nil
}

func (r *memoryRepo) List(_ context.Context) ([]users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]users.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, *user)
	}
	return out, nil
}

func (r *memoryRepo) setActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].IsActive = active
}

var _ users.Repository = (*memoryRepo)(nil)

// captureSink records emitted events for assertions.
type captureSink struct {
	mu         sync.Mutex
	registered []uuid.UUID
	resets     map[uuid.UUID]string
	verifies   map[uuid.UUID]string
}

func newCaptureSink() *captureSink {
	return &captureSink{
		resets:   make(map[uuid.UUID]string),
		verifies: make(map[uuid.UUID]string),
	}
}

func (s *captureSink) OnUserRegistered(_ context.Context, user *users.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, user.ID)
}

func (s *captureSink) OnPasswordResetRequested(_ context.Context, user *users.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[user.ID] = token
}

func (s *captureSink) OnVerificationRequested(_ context.Context, user *users.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifies[user.ID] = token
}

func (s *captureSink) resetTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}

func (s *captureSink) anyResetToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.resets {
		return token
	}
	return ""
}

func (s *captureSink) anyVerifyToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.verifies {
		return token
	}
	return ""
}

type serviceFixture struct {
	repo    *memoryRepo
	sink    *captureSink
	service *auth.Service
}

func newServiceFixture(t *testing.T, usedTokens auth.UsedTokenStore) *serviceFixture {
	t.Helper()
	repo := newMemoryRepo()
	sink := newCaptureSink()
	tokens, err := auth.NewJWTService([]byte("access-secret"), 8*24*time.Hour)
	require.NoError(t, err)
	actions, err := auth.NewActionTokens([]byte("reset-secret"), time.Hour, time.Hour)
	require.NoError(t, err)
	service := auth.NewService(auth.ServiceParams{
		Repo:       repo,
		Hasher:     auth.NewBcryptHasher(4),
		Tokens:     tokens,
		Actions:    actions,
		UsedTokens: usedTokens,
		Sink:       sink,
		Logger:     slog.Default(),
	})
	return &serviceFixture{repo: repo, sink: sink, service: service}
}

func TestRegister(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "U@Example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "u@example.com", user.Email)
	require.True(t, user.IsActive)
	require.False(t, user.IsSuperuser)
	require.False(t, user.IsVerified)
	require.NotEqual(t, "secret123", user.HashedPassword)
	require.Equal(t, []uuid.UUID{user.ID}, fx.sink.registered)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	_, err = fx.service.Register(ctx, "u@example.com", "othersecret")
	require.ErrorIs(t, err, shared.ErrDuplicateEmail)

	// Case differences do not bypass uniqueness.
	_, err = fx.service.Register(ctx, "U@EXAMPLE.COM", "othersecret")
	require.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestRegisterConcurrentDuplicate(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.service.Register(ctx, "race@example.com", "secret123")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, shared.ErrDuplicateEmail)
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, attempts-1, lost)
}

func TestRegisterValidation(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := fx.service.Register(ctx, "not-an-email", "secret123")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = fx.service.Register(ctx, "u@example.com", "short")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPasswordOverBcryptLimit(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	// bcrypt rejects inputs beyond 72 bytes; the policy check must catch
	// them first so the caller sees a validation error, not a hashing one.
	long := strings.Repeat("a", 100)

	_, err := fx.service.Register(ctx, "u@example.com", long)
	require.ErrorIs(t, err, shared.ErrValidation)

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	err = fx.service.ChangePassword(ctx, user.ID, long)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, fx.service.ForgotPassword(ctx, "u@example.com"))
	resetToken := fx.sink.resets[user.ID]
	require.NotEmpty(t, resetToken)
	err = fx.service.ResetPassword(ctx, resetToken, long)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLoginIndistinguishableFailures(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	// Wrong password, unknown email and inactive account must all yield
	// exactly the same error.
	_, err = fx.service.Login(ctx, "u@example.com", "wrongpass1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = fx.service.Login(ctx, "ghost@example.com", "secret123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	fx.repo.setActive(user.ID, false)
	_, err = fx.service.Login(ctx, "u@example.com", "secret123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginAndResolve(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	token, err := fx.service.Login(ctx, "u@example.com", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	resolved, err := fx.service.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
	require.Equal(t, "u@example.com", resolved.Email)
}

func TestResolveRejectsInactiveAndBadTokens(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)
	token, err := fx.service.Login(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	_, err = fx.service.Resolve(ctx, "corrupted.token.value")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	// Deactivation invalidates a still-valid token at the resolve boundary.
	fx.repo.setActive(user.ID, false)
	_, err = fx.service.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestForgotPasswordFlow(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	// Unknown email: silent success, nothing emitted.
	require.NoError(t, fx.service.ForgotPassword(ctx, "ghost@example.com"))
	require.Empty(t, fx.sink.resets)

	require.NoError(t, fx.service.ForgotPassword(ctx, "u@example.com"))
	resetToken := fx.sink.resets[user.ID]
	require.NotEmpty(t, resetToken)

	require.NoError(t, fx.service.ResetPassword(ctx, resetToken, "newsecret1"))

	_, err = fx.service.Login(ctx, "u@example.com", "secret123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = fx.service.Login(ctx, "u@example.com", "newsecret1")
	require.NoError(t, err)
}

func TestResetPasswordRejectsBadToken(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	err := fx.service.ResetPassword(ctx, "garbage", "newsecret1")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResetTokenSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fx := newServiceFixture(t, auth.NewRedisUsedTokenStore(rdb))
	ctx := context.Background()

	_, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, fx.service.ForgotPassword(ctx, "u@example.com"))

	var resetToken string
	for _, token := range fx.sink.resets {
		resetToken = token
	}
	require.NotEmpty(t, resetToken)

	require.NoError(t, fx.service.ResetPassword(ctx, resetToken, "newsecret1"))
	err = fx.service.ResetPassword(ctx, resetToken, "othersecret2")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResetTokenSurvivesFailedAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fx := newServiceFixture(t, auth.NewRedisUsedTokenStore(rdb))
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, fx.service.ForgotPassword(ctx, "u@example.com"))
	resetToken := fx.sink.resets[user.ID]
	require.NotEmpty(t, resetToken)

	// A reset that fails the account checks must not burn the token.
	fx.repo.setActive(user.ID, false)
	err = fx.service.ResetPassword(ctx, resetToken, "newsecret1")
	require.ErrorIs(t, err, shared.ErrValidation)

	fx.repo.setActive(user.ID, true)
	require.NoError(t, fx.service.ResetPassword(ctx, resetToken, "newsecret1"))

	_, err = fx.service.Login(ctx, "u@example.com", "newsecret1")
	require.NoError(t, err)
}

func TestVerificationFlow(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, fx.service.RequestVerification(ctx, "u@example.com"))
	verifyToken := fx.sink.verifies[user.ID]
	require.NotEmpty(t, verifyToken)

	verified, err := fx.service.Verify(ctx, verifyToken)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)

	_, err = fx.service.Verify(ctx, verifyToken)
	require.ErrorIs(t, err, shared.ErrAlreadyVerified)

	// Verified accounts no longer get verification tokens.
	fx.sink.verifies = map[uuid.UUID]string{}
	require.NoError(t, fx.service.RequestVerification(ctx, "u@example.com"))
	require.Empty(t, fx.sink.verifies)
}

func TestVerifyRejectsStaleEmail(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	user, err := fx.service.Register(ctx, "u@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, fx.service.RequestVerification(ctx, "u@example.com"))
	verifyToken := fx.sink.verifies[user.ID]

	// Address changed after the token was issued.
	require.NoError(t, fx.repo.UpdateEmail(ctx, user.ID, "new@example.com"))

	_, err = fx.service.Verify(ctx, verifyToken)
	require.ErrorIs(t, err, shared.ErrValidation)
}
