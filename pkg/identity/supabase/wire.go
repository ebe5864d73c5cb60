package supabase

import (
	"fmt"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/identity"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

type gotrueUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
	AppMetadata      map[string]interface{} `json:"app_metadata"`
	CreatedAt        *time.Time             `json:"created_at"`
	UpdatedAt        *time.Time             `json:"updated_at"`
}

func (u *gotrueUser) toProviderUser() *identity.ProviderUser {
	meta := make(map[string]interface{}, len(u.UserMetadata)+1)
	for k, v := range u.UserMetadata {
		meta[k] = v
	}
	if len(u.AppMetadata) > 0 {
		meta["app_metadata"] = u.AppMetadata
	}
	return &identity.ProviderUser{
		ID:            u.ID,
		Email:         u.Email,
		ProviderType:  models.ProviderSupabase,
		EmailVerified: u.EmailConfirmedAt != nil,
		Metadata:      meta,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *gotrueUser `json:"user"`
}

func (s *sessionResponse) tokens() identity.TokenPair {
	pair := identity.TokenPair{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if s.ExpiresIn > 0 {
		pair.ExpiresIn = time.Duration(s.ExpiresIn) * time.Second
	}
	if s.ExpiresAt > 0 {
		at := time.Unix(s.ExpiresAt, 0).UTC()
		pair.ExpiresAt = &at
	}
	return pair
}

// signupResponse is either a bare user (confirmation pending) or a session
type signupResponse struct {
	gotrueUser
	User *gotrueUser `json:"user"`
}

func (r *signupResponse) resolve() *gotrueUser {
	if r.User != nil {
		return r.User
	}
	return &r.gotrueUser
}

type userListResponse struct {
	Users []gotrueUser `json:"users"`
}

type errorResponse struct {
	Code             interface{} `json:"code"`
	Msg              string      `json:"msg"`
	Message          string      `json:"message"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

func (e *errorResponse) message() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

func (e *errorResponse) asError(op string, status int) error {
	return unavailable(fmt.Errorf("supabase %s failed with status %d: %s", op, status, e.message()))
}
