package identity

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

const tracerName = "github.com/platinummonkey/gatekeeper/pkg/identity"

// CallObserver receives the duration and outcome of each provider call
type CallObserver interface {
	ObserveProviderCall(provider, operation string, duration time.Duration, err error)
}

// Instrumented wraps a provider with a span and an observation per call
type Instrumented struct {
	next     Provider
	tracer   trace.Tracer
	observer CallObserver
}

// Instrument wraps p. observer may be nil.
func Instrument(p Provider, observer CallObserver) *Instrumented {
	return &Instrumented{
		next:     p,
		tracer:   otel.Tracer(tracerName),
		observer: observer,
	}
}

// Unwrap returns the wrapped provider
func (i *Instrumented) Unwrap() Provider {
	return i.next
}

func (i *Instrumented) start(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := i.tracer.Start(ctx, "identity."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("identity.provider", string(i.next.Type()))),
	)
	started := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		}
		span.End()
		if i.observer != nil {
			i.observer.ObserveProviderCall(string(i.next.Type()), op, time.Since(started), err)
		}
	}
}

func (i *Instrumented) Type() models.ProviderType {
	return i.next.Type()
}

func (i *Instrumented) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, done := i.start(ctx, "authenticate")
	res, err := i.next.Authenticate(ctx, email, password)
	done(err)
	return res, err
}

func (i *Instrumented) ValidateToken(ctx context.Context, token string) (Claims, error) {
	ctx, done := i.start(ctx, "validate_token")
	claims, err := i.next.ValidateToken(ctx, token)
	done(err)
	return claims, err
}

func (i *Instrumented) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, done := i.start(ctx, "refresh_token")
	tokens, err := i.next.RefreshToken(ctx, refreshToken)
	done(err)
	return tokens, err
}

func (i *Instrumented) CreateUser(ctx context.Context, email, password string, attrs map[string]interface{}) (*ProviderUser, error) {
	ctx, done := i.start(ctx, "create_user")
	u, err := i.next.CreateUser(ctx, email, password, attrs)
	done(err)
	return u, err
}

func (i *Instrumented) GetUserByID(ctx context.Context, id string) (*ProviderUser, error) {
	ctx, done := i.start(ctx, "get_user_by_id")
	u, err := i.next.GetUserByID(ctx, id)
	done(err)
	return u, err
}

func (i *Instrumented) GetUserByEmail(ctx context.Context, email string) (*ProviderUser, error) {
	ctx, done := i.start(ctx, "get_user_by_email")
	u, err := i.next.GetUserByEmail(ctx, email)
	done(err)
	return u, err
}

func (i *Instrumented) UpdateUser(ctx context.Context, id string, attrs map[string]interface{}) (*ProviderUser, error) {
	ctx, done := i.start(ctx, "update_user")
	u, err := i.next.UpdateUser(ctx, id, attrs)
	done(err)
	return u, err
}

func (i *Instrumented) DeleteUser(ctx context.Context, id string) error {
	ctx, done := i.start(ctx, "delete_user")
	err := i.next.DeleteUser(ctx, id)
	done(err)
	return err
}

func (i *Instrumented) Logout(ctx context.Context, providerUserID, sessionRef string) (bool, error) {
	ctx, done := i.start(ctx, "logout")
	ok, err := i.next.Logout(ctx, providerUserID, sessionRef)
	done(err)
	return ok, err
}

func (i *Instrumented) SendPasswordReset(ctx context.Context, email string) (bool, error) {
	ctx, done := i.start(ctx, "send_password_reset")
	ok, err := i.next.SendPasswordReset(ctx, email)
	done(err)
	return ok, err
}

func (i *Instrumented) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	ctx, done := i.start(ctx, "reset_password")
	ok, err := i.next.ResetPassword(ctx, token, newPassword)
	done(err)
	return ok, err
}
