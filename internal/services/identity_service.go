package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearcart/api/internal/domain"
)

const guestTokenPrefix = "guest_"

var (
	// ErrIdentityInvalidInput indicates the caller supplied invalid identity data.
	ErrIdentityInvalidInput = errors.New("identity: invalid input")
	// ErrIdentityUnresolved indicates neither an account nor a guest identity
	// could be established.
	ErrIdentityUnresolved = errors.New("identity: owner could not be resolved")
)

// IdentityServiceDeps bundles collaborators for the identity service.
type IdentityServiceDeps struct {
	IDGenerator func() string
}

type identityService struct {
	newID func() string
}

var _ IdentityService = (*identityService)(nil)

// NewIdentityService constructs the owner resolver.
func NewIdentityService(deps IdentityServiceDeps) (IdentityService, error) {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &identityService{newID: idGen}, nil
}

// Resolve maps the request identity onto an order owner. An authenticated
// user always wins; otherwise a guest owner is minted (or re-used via the
// supplied guest token) and requires a valid contact email.
func (s *identityService) Resolve(_ context.Context, cmd ResolveOwnerCommand) (domain.OwnerRef, error) {
	if userID := strings.TrimSpace(cmd.UserID); userID != "" {
		return domain.OwnerRef{
			Kind:  domain.OwnerKindAccount,
			ID:    userID,
			Email: strings.TrimSpace(cmd.Email),
		}, nil
	}

	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return domain.OwnerRef{}, fmt.Errorf("%w: guest checkout requires an email", ErrIdentityUnresolved)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.OwnerRef{}, fmt.Errorf("%w: invalid email address", ErrIdentityInvalidInput)
	}

	token := strings.TrimSpace(cmd.GuestToken)
	if token == "" {
		token = guestTokenPrefix + s.newID()
	} else if !validGuestToken(token) {
		return domain.OwnerRef{}, fmt.Errorf("%w: malformed guest token", ErrIdentityInvalidInput)
	}

	return domain.OwnerRef{
		Kind:  domain.OwnerKindGuest,
		ID:    token,
		Email: email,
	}, nil
}

func validGuestToken(token string) bool {
	if !strings.HasPrefix(token, guestTokenPrefix) {
		return false
	}
	rest := strings.TrimPrefix(token, guestTokenPrefix)
	if rest == "" || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return true
}
