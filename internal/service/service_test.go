package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"followpro/api/config"
	"followpro/api/db"
	"followpro/api/internal/model"
	"followpro/api/internal/store"
	"followpro/api/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	fail  error
}

func (f *fakeNotifier) SendCode(_ context.Context, email, code string, purpose model.Purpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return f.fail
	}

	f.codes[email+"|"+string(purpose)] = code
	f.sent++
	return nil
}

func (f *fakeNotifier) code(email string, purpose model.Purpose) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[email+"|"+string(purpose)]
}

func (f *fakeNotifier) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

type fixture struct {
	auth     *AuthService
	users    *UserService
	store    *store.GormStore
	hasher   *security.Hasher
	notifier *fakeNotifier
	clock    *testClock
}

var t0 = time.Unix(1_700_000_000, 0)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	d, err := db.New(config.Database{Type: "sqlite", Path: sqlitePath(t, "auth.db")}, "info")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(d) })

	s := store.NewGormStore(d)
	clock := &testClock{t: t0}

	hasher, err := security.NewHasher("argon2id",
		&security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		security.NewBcrypt(bcrypt.MinCost))
	require.NoError(t, err)

	tokens, err := security.NewTokenIssuer(&security.TokenIssuerOpts{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	notifier := &fakeNotifier{codes: map[string]string{}}

	auth, err := NewAuthService(&AuthServiceOpts{
		Store:         s,
		Hasher:        hasher,
		Tokens:        tokens,
		OTP:           NewOTPEngine(10*time.Minute, 6, clock.Now),
		Notifier:      notifier,
		UnverifiedTTL: 7 * 24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	return &fixture{
		auth:     auth,
		users:    NewUserService(s, hasher, time.Second),
		store:    s,
		hasher:   hasher,
		notifier: notifier,
		clock:    clock,
	}
}

// registerVerified registers email and verifies it with the delivered code
func (f *fixture) registerVerified(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{
		UserID: res.UserID,
		OTP:    f.notifier.code(model.NormalizeEmail(email), model.PurposeVerification),
		Type:   model.PurposeVerification,
	})
	require.NoError(t, err)

	return res.UserID
}

func kindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return -1
}

func TestRegisterVerifyLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.Len(t, res.UserID, 16)

	_, err = f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrEmailNotVerified)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, res.UserID, ae.UserID)

	code := f.notifier.code("a@b.com", model.PurposeVerification)
	require.Len(t, code, 6)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
	require.NoError(t, err)

	login, err := f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.True(t, login.User.Verified)
	assert.Equal(t, model.RoleUser, login.User.Role)
	assert.Equal(t, "a@b.com", login.User.Email)

	// Verification clears the pending-account expiry
	u, err := f.store.FindUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Nil(t, u.ExpiresAt)

	// Single use
	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrOtpInvalid)
}

// findBarrier holds every FindOtp caller until all of them have read the code,
// so the deletes race on a row each caller saw as valid
type findBarrier struct {
	store.Store
	found *sync.WaitGroup
}

func (b *findBarrier) FindOtp(ctx context.Context, userID, code string, purpose model.Purpose, now int64) (*model.OTPToken, error) {
	tok, err := b.Store.FindOtp(ctx, userID, code, purpose, now)
	b.found.Done()
	b.found.Wait()
	return tok, err
}

func TestConsumeInterleavedFindsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	code := f.notifier.code("a@b.com", model.PurposeVerification)

	const workers = 4
	var found, done sync.WaitGroup
	found.Add(workers)
	done.Add(workers)

	engine := NewOTPEngine(10*time.Minute, 6, f.clock.Now)
	s := &findBarrier{Store: f.store, found: &found}
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer done.Done()
			errs[i] = engine.Consume(ctx, s, res.UserID, code, model.PurposeVerification)
		}()
	}

	done.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrOtpInvalid)
	}
	assert.Equal(t, 1, ok)
}

func TestVerifyOTPConcurrentSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	code := f.notifier.code("a@b.com", model.PurposeVerification)

	const workers = 16
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
		}()
	}

	close(start)
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOtpInvalid):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, invalid)
}

func TestOTPExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	code := f.notifier.code("a@b.com", model.PurposeVerification)

	// now == expiresAt is already expired
	f.clock.Set(t0.Add(10 * time.Minute))
	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrOtpInvalid)

	f.clock.Set(t0.Add(10*time.Minute + time.Millisecond))
	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrOtpInvalid)

	issued := t0.Add(time.Hour)
	f.clock.Set(issued)
	require.NoError(t, f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: res.UserID, Email: "a@b.com", Type: model.PurposeVerification}))
	code = f.notifier.code("a@b.com", model.PurposeVerification)

	// One millisecond before expiry still works
	f.clock.Set(issued.Add(10*time.Minute - time.Millisecond))
	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposeVerification})
	require.NoError(t, err)
}

func TestResendInvalidatesPreviousCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	old := f.notifier.code("a@b.com", model.PurposeVerification)

	// Keep generating until the new code differs, a repeat would make the
	// old code look valid
	var fresh string
	for _i := 0; _i < 10; _i++ {
		require.NoError(t, f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: res.UserID, Email: "A@B.com", Type: model.PurposeVerification}))
		fresh = f.notifier.code("a@b.com", model.PurposeVerification)
		if fresh != old {
			break
		}
	}
	require.NotEqual(t, old, fresh)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: old, Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrOtpInvalid)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: fresh, Type: model.PurposeVerification})
	require.NoError(t, err)
}

func TestResendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.registerVerified(t, "a@b.com", "secret1")

	err := f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: id, Email: "other@b.com", Type: model.PurposePasswordReset})
	require.ErrorIs(t, err, ErrValidation)

	err = f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: id, Email: "a@b.com", Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrValidation)

	err = f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: "missing", Email: "a@b.com", Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: id, Email: "a@b.com", Type: model.PurposePasswordReset}))
	assert.Len(t, f.notifier.code("a@b.com", model.PurposePasswordReset), 6)
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, &RegisterRequest{Email: "User@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, &RegisterRequest{Email: "user@x.com", Password: "secret2"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLoginInvalidCredentialsIdentical(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.registerVerified(t, "a@b.com", "secret1")

	_, wrongPassword := f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "nope123"})
	_, unknownEmail := f.auth.Login(ctx, &LoginRequest{Email: "x@b.com", Password: "secret1"})

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.registerVerified(t, "a@b.com", "secret1")

	_, err := f.auth.ForgotPassword(ctx, &ForgotPasswordRequest{Email: "nobody@b.com"})
	require.ErrorIs(t, err, ErrUserNotFound)

	res, err := f.auth.ForgotPassword(ctx, &ForgotPasswordRequest{Email: "A@b.com"})
	require.NoError(t, err)
	assert.Equal(t, id, res.UserID)

	code := f.notifier.code("a@b.com", model.PurposePasswordReset)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = f.auth.ResetPassword(ctx, &ResetPasswordRequest{UserID: id, OTP: wrong, NewPassword: "newsecret"})
	require.ErrorIs(t, err, ErrOtpInvalid)

	// A reset code can't verify through the wrong purpose
	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: id, OTP: code, Type: model.PurposeVerification})
	require.ErrorIs(t, err, ErrOtpInvalid)

	err = f.auth.ResetPassword(ctx, &ResetPasswordRequest{UserID: id, OTP: code, NewPassword: "newsecret"})
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, &ResetPasswordRequest{UserID: id, OTP: code, NewPassword: "another1"})
	require.ErrorIs(t, err, ErrOtpInvalid)

	_, err = f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "newsecret"})
	require.NoError(t, err)
}

func TestVerifyOTPPasswordResetOnlyConsumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.auth.ForgotPassword(ctx, &ForgotPasswordRequest{Email: "a@b.com"})
	require.NoError(t, err)
	code := f.notifier.code("a@b.com", model.PurposePasswordReset)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: res.UserID, OTP: code, Type: model.PurposePasswordReset})
	require.NoError(t, err)

	u, err := f.store.FindUserByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.False(t, u.Verified)

	err = f.auth.ResetPassword(ctx, &ResetPasswordRequest{UserID: res.UserID, OTP: code, NewPassword: "newsecret"})
	require.ErrorIs(t, err, ErrOtpInvalid)
}

func TestRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.registerVerified(t, "a@b.com", "secret1")
	login, err := f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.auth.RefreshToken(ctx, &RefreshTokenRequest{RefreshToken: login.RefreshToken + "x"})
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.auth.RefreshToken(ctx, &RefreshTokenRequest{RefreshToken: login.AccessToken})
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.auth.RefreshToken(ctx, &RefreshTokenRequest{})
	require.ErrorIs(t, err, ErrValidation)

	f.clock.Set(t0.Add(time.Hour))
	pair, err := f.auth.RefreshToken(ctx, &RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, login.AccessToken, pair.AccessToken)
}

func TestDeliveryFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.notifier.setFail(errors.New("smtp down"))

	_, err := f.auth.Register(ctx, &RegisterRequest{Email: "a@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrDelivery)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	require.NotEmpty(t, ae.UserID)

	// The account and its code were persisted before delivery failed
	u, err := f.store.FindUserByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, ae.UserID, u.ID)

	f.notifier.setFail(nil)
	require.NoError(t, f.auth.ResendOTP(ctx, &ResendOTPRequest{UserID: ae.UserID, Email: "a@b.com", Type: model.PurposeVerification}))

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{
		UserID: ae.UserID,
		OTP:    f.notifier.code("a@b.com", model.PurposeVerification),
		Type:   model.PurposeVerification,
	})
	require.NoError(t, err)
}

func TestValidationErrorsCarryFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, &RegisterRequest{Email: "not-an-email", Password: "123"})
	require.ErrorIs(t, err, ErrValidation)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Fields, 2)

	err = f.auth.VerifyOTP(ctx, &VerifyOTPRequest{UserID: "x", OTP: "123456", Type: "LOGIN"})
	assert.Equal(t, KindValidation, kindOf(err))
}

func TestStoreErrorsAreClassified(t *testing.T) {
	assert.Equal(t, KindStoreUnavailable, kindOf(storeError(store.ErrUnavailable)))
	assert.Equal(t, KindStoreUnavailable, kindOf(storeError(context.DeadlineExceeded)))
	assert.Equal(t, KindOtpInvalid, kindOf(storeError(ErrOtpInvalid)))
	assert.Equal(t, KindInternal, kindOf(storeError(errors.New("boom"))))
}

func TestUserProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.registerVerified(t, "a@b.com", "secret1")

	p, err := f.users.Profile(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.ProfileCompleted)
	assert.Equal(t, []string{}, p.Skills)

	p, err = f.users.UpdateProfile(ctx, id, &UpdateProfileRequest{Name: "  Ann ", Skills: []string{"Go", " SQL "}})
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, []string{"Go", "SQL"}, p.Skills)
	assert.True(t, p.ProfileCompleted)

	_, err = f.users.UpdateProfile(ctx, id, &UpdateProfileRequest{Name: "Ann", Skills: []string{"a,b"}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.users.UpdateProfile(ctx, "missing", &UpdateProfileRequest{Name: "Ann"})
	require.ErrorIs(t, err, ErrUserNotFound)

	err = f.users.ChangePassword(ctx, id, &ChangePasswordRequest{CurrentPassword: "wrong1", NewPassword: "newsecret"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.users.ChangePassword(ctx, id, &ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret1"})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.users.ChangePassword(ctx, id, &ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "newsecret"}))

	_, err = f.auth.Login(ctx, &LoginRequest{Email: "a@b.com", Password: "newsecret"})
	require.NoError(t, err)

	role, err := f.users.Role(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, role)

	_, err = f.users.Role(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.users.Ping(ctx))
}

func TestSeedAdminAndListUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cfg := config.Admin{Email: "Admin@x.com", Password: "adminpass", Name: "System Admin"}

	created, err := SeedAdmin(ctx, f.store, f.hasher, cfg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = SeedAdmin(ctx, f.store, f.hasher, cfg)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = SeedAdmin(ctx, f.store, f.hasher, config.Admin{Email: "x@y.com"})
	require.Error(t, err)

	// Seeded admins can log in straight away
	login, err := f.auth.Login(ctx, &LoginRequest{Email: "admin@x.com", Password: "adminpass"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, login.User.Role)
	assert.True(t, login.User.ProfileCompleted)

	f.registerVerified(t, "a@b.com", "secret1")

	all, err := f.users.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCleaner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Register(ctx, &RegisterRequest{Email: "stale@b.com", Password: "secret1"})
	require.NoError(t, err)
	kept := f.registerVerified(t, "kept@b.com", "secret1")

	// Past the code ttl but before the account expires only the code goes
	c := NewCleaner(f.store, time.Second, func() time.Time { return t0.Add(time.Hour) })
	c.TokenCleanup()
	c.AccountCleanup()

	_, err = f.store.FindUserByID(ctx, res.UserID)
	require.NoError(t, err)

	c = NewCleaner(f.store, time.Second, func() time.Time { return t0.Add(8 * 24 * time.Hour) })
	c.AccountCleanup()

	_, err = f.store.FindUserByID(ctx, res.UserID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.store.FindUserByID(ctx, kept)
	require.NoError(t, err)
}

func TestScheduleCleanup(t *testing.T) {
	f := newFixture(t)
	c := NewCleaner(f.store, time.Second, nil)

	cr, err := ScheduleCleanup(c, config.Cleanup{TokensEvery: time.Hour, AccountsEvery: 24 * time.Hour, UnverifiedTTL: time.Hour})
	require.NoError(t, err)
	assert.Len(t, cr.Entries(), 2)

	cr, err = ScheduleCleanup(c, config.Cleanup{TokensEvery: time.Hour, AccountsEvery: 24 * time.Hour})
	require.NoError(t, err)
	assert.Len(t, cr.Entries(), 1)
}

// sqlitePath creates an empty database file so db.New also works inside a
// container, where it refuses to create one
func sqlitePath(t *testing.T, name string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, nil, 0o600))

	return p
}
