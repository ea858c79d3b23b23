package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	store   *memStore
	clock   *testclock.Clock
	issuer  *Issuer
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	clk := testclock.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	issuer, err := NewIssuer(IssuerConfig{
		SigningKey: testKey,
		Issuer:     "odyssey-rbac",
		Audience:   "odyssey-console",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, store, store, clk, nil, observability.NewMetrics())
	require.NoError(t, err)
	return &fixture{
		store:   store,
		clock:   clk,
		issuer:  issuer,
		service: NewService(store, issuer, clk, nil, nil),
	}
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func (f *fixture) addBob(t *testing.T) User {
	t.Helper()
	bob := User{ID: 7, Username: "bob", PasswordHash: hashForTest(t, "correct horse"), Enabled: true}
	f.store.addUser(bob, "editor", "viewer")
	return bob
}

func TestLoginIssuesClaims(t *testing.T) {
	f := newFixture(t)
	f.addBob(t)

	pair, err := f.service.Login(context.Background(), "Bob", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshTokenExpiresAt.After(pair.AccessTokenExpiresAt))

	claims, err := f.issuer.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, int64(7), claims.UserID)
	assert.ElementsMatch(t, []string{"editor", "viewer"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, f.clock.Now().Add(15*time.Minute).Equal(claims.ExpiresAt))

	token, err := jwt.Parse([]byte(pair.AccessToken), jwt.WithKey(jwa.HS256, testKey), jwt.WithClock(f.clock))
	require.NoError(t, err)
	assert.Equal(t, "odyssey-rbac", token.Issuer())
	assert.Equal(t, []string{"odyssey-console"}, token.Audience())

	_, found := f.store.tokenByValue(pair.RefreshToken)
	assert.True(t, found, "refresh token must be stored by hash")
	assert.True(t, f.clock.Now().Equal(f.store.lastLogin[7]))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.addBob(t)
	f.store.addUser(User{ID: 8, Username: "dora", PasswordHash: hashForTest(t, "pw"), Enabled: false})
	f.store.addUser(User{ID: 9, Username: "eve", PasswordHash: hashForTest(t, "pw"), Enabled: true, Locked: true})

	attempts := []struct{ username, password string }{
		{"nobody", "correct horse"},
		{"bob", "wrong"},
		{"dora", "pw"},
		{"eve", "pw"},
		{"", ""},
	}
	var messages []string
	for _, a := range attempts {
		_, err := f.service.Login(context.Background(), a.username, a.password)
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, a.username)
		messages = append(messages, err.Error())
	}
	for _, msg := range messages {
		assert.Equal(t, messages[0], msg)
	}
}

func TestLoginStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.addBob(t)
	f.store.failUsers(errStoreDown)

	_, err := f.service.Login(context.Background(), "bob", "correct horse")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginSucceedsWhenLastLoginFails(t *testing.T) {
	f := newFixture(t)
	f.addBob(t)
	f.store.recordErr = errStoreDown

	_, err := f.service.Login(context.Background(), "bob", "correct horse")
	assert.NoError(t, err)
}

func TestRefreshRotatesAndOldTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	next, err := f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	old, _ := f.store.tokenByValue(pair.RefreshToken)
	assert.True(t, old.Revoked())

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrTokenReused)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = f.service.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshExpiredByOneSecond(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
	assert.NotErrorIs(t, err, shared.ErrTokenReused)
}

func TestRefreshAtExactExpiryIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Refresh(context.Background(), "deadbeef.bm9wZQ")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = f.service.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestRefreshForDisabledOwnerRevokes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	bob.Enabled = false
	f.store.setUser(bob)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	stored, _ := f.store.tokenByValue(pair.RefreshToken)
	assert.True(t, stored.Revoked())
}

func TestRefreshForDeletedOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	f.store.deleteUser(7)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	stored, _ := f.store.tokenByValue(pair.RefreshToken)
	assert.True(t, stored.Revoked())
}

func TestRefreshStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	f.store.failTokens(errStoreDown)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, attempts-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, shared.ErrInvalidToken)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addBob(t)
	pair, err := f.service.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, "never-issued"))
	require.NoError(t, f.service.Logout(ctx, ""))

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestLogoutSurfacesOnlyUnavailability(t *testing.T) {
	f := newFixture(t)
	f.store.failTokens(errStoreDown)

	err := f.service.Logout(context.Background(), "anything")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.True(t, errors.Is(err, errStoreDown))
}
