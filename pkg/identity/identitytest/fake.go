// Package identitytest provides an in-memory identity provider for tests.
package identitytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

type account struct {
	user     identity.ProviderUser
	password string
}

// Fake is a thread-safe in-memory Provider. Tokens are opaque random strings.
type Fake struct {
	mu            sync.Mutex
	accounts      map[string]*account // by provider user id
	byEmail       map[string]string
	accessTokens  map[string]string // token -> provider user id
	refreshTokens map[string]string
	resetTokens   map[string]string
	failures      map[string]error
	calls         map[string]int

	// TokenTTL is reported as ExpiresIn on issued tokens. Zero omits expiry.
	TokenTTL time.Duration

	// OnAuthenticate runs before credentials are checked, outside the lock
	OnAuthenticate func()
}

// NewFake creates an empty fake provider
func NewFake() *Fake {
	return &Fake{
		accounts:      make(map[string]*account),
		byEmail:       make(map[string]string),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		resetTokens:   make(map[string]string),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		TokenTTL:      time.Hour,
	}
}

// AddUser seeds an account and returns its provider user id
func (f *Fake) AddUser(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(email, password, nil).user.ID
}

func (f *Fake) addLocked(email, password string, attrs map[string]interface{}) *account {
	now := time.Now()
	acc := &account{
		user: identity.ProviderUser{
			ID:           uuid.NewString(),
			Email:        email,
			ProviderType: models.ProviderCustom,
			Metadata:     attrs,
			CreatedAt:    &now,
			UpdatedAt:    &now,
		},
		password: password,
	}
	f.accounts[acc.user.ID] = acc
	f.byEmail[email] = acc.user.ID
	return acc
}

// Fail makes every later call to op return err until cleared with Fail(op, nil)
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// RevokeToken makes the provider reject an access token it issued
func (f *Fake) RevokeToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accessTokens, token)
}

// IssueResetToken returns a token that ResetPassword accepts for email
func (f *Fake) IssueResetToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.resetTokens[token] = f.byEmail[email]
	return token
}

// Calls returns how many times op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// HasUser reports whether a provider account with id exists
func (f *Fake) HasUser(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[id]
	return ok
}

func (f *Fake) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.failures[op]
	f.mu.Unlock()
	return err
}

func (f *Fake) issueLocked(userID string) identity.TokenPair {
	access := "at-" + uuid.NewString()
	refresh := "rt-" + uuid.NewString()
	f.accessTokens[access] = userID
	f.refreshTokens[refresh] = userID
	return identity.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    identity.DefaultTokenType,
		ExpiresIn:    f.TokenTTL,
	}
}

func (f *Fake) Type() models.ProviderType {
	return models.ProviderCustom
}

func (f *Fake) Authenticate(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	if err := f.enter("authenticate"); err != nil {
		return nil, err
	}
	if f.OnAuthenticate != nil {
		f.OnAuthenticate()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byEmail[email]
	if !ok || f.accounts[id].password != password {
		return nil, apperr.CredentialsInvalid()
	}
	user := f.accounts[id].user
	return &identity.AuthResult{
		User:            &user,
		Tokens:          f.issueLocked(id),
		SessionMetadata: map[string]interface{}{"provider": "fake"},
	}, nil
}

func (f *Fake) ValidateToken(ctx context.Context, token string) (identity.Claims, error) {
	if err := f.enter("validate_token"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.accessTokens[token]
	if !ok {
		return nil, apperr.TokenInvalid()
	}
	return identity.Claims{"sub": id, "email": f.accounts[id].user.Email}, nil
}

func (f *Fake) RefreshToken(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	if err := f.enter("refresh_token"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.refreshTokens[refreshToken]
	if !ok {
		return nil, apperr.TokenInvalid()
	}
	delete(f.refreshTokens, refreshToken)
	tokens := f.issueLocked(id)
	return &tokens, nil
}

func (f *Fake) CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	if err := f.enter("create_user"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.byEmail[email]; exists {
		return nil, apperr.AlreadyExists("User", "email", email)
	}
	user := f.addLocked(email, password, attrs).user
	return &user, nil
}

func (f *Fake) GetUserByID(ctx context.Context, id string) (*identity.ProviderUser, error) {
	if err := f.enter("get_user_by_id"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	user := acc.user
	return &user, nil
}

func (f *Fake) GetUserByEmail(ctx context.Context, email string) (*identity.ProviderUser, error) {
	if err := f.enter("get_user_by_email"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	user := f.accounts[id].user
	return &user, nil
}

func (f *Fake) UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*identity.ProviderUser, error) {
	if err := f.enter("update_user"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, ok := f.accounts[id]
	if !ok {
		return nil, apperr.UserNotFound(id)
	}
	if acc.user.Metadata == nil {
		acc.user.Metadata = make(map[string]interface{})
	}
	for k, v := range attrs {
		acc.user.Metadata[k] = v
	}
	user := acc.user
	return &user, nil
}

func (f *Fake) DeleteUser(ctx context.Context, id string) error {
	if err := f.enter("delete_user"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, ok := f.accounts[id]
	if !ok {
		return apperr.UserNotFound(id)
	}
	delete(f.byEmail, acc.user.Email)
	delete(f.accounts, id)
	return nil
}

func (f *Fake) Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error) {
	if err := f.enter("logout"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for token, id := range f.accessTokens {
		if id == providerUserID {
			delete(f.accessTokens, token)
		}
	}
	return true, nil
}

func (f *Fake) SendPasswordReset(ctx context.Context, email string) (bool, error) {
	if err := f.enter("send_password_reset"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Fake) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	if err := f.enter("reset_password"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.resetTokens[token]
	if !ok {
		return false, fmt.Errorf("unknown reset token")
	}
	delete(f.resetTokens, token)
	f.accounts[id].password = newPassword
	return true, nil
}

var _ identity.Provider = (*Fake)(nil)
