package auth

import (
	"context"
	"net/http"
	"quorum/domain"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Resolver turns a request into an identity: a bearer token ("Authorization"
// header or "token" query parameter) gives a user, no token gives a guest
// named by the "name" query parameter. A bad token is an error, never a guest.
type Resolver struct {
	secret []byte
}

func NewResolver(secret []byte) *Resolver {
	return &Resolver{secret: secret}
}

func (r *Resolver) Resolve(req *http.Request) (domain.Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		token = req.URL.Query().Get("token")
	}
	if token == "" {
		return domain.NewGuest(strings.TrimSpace(req.URL.Query().Get("name"))), nil
	}

	claims, err := ValidateToken(r.secret, token)
	if err != nil {
		return domain.Identity{}, err
	}
	name := claims.Name
	if name == "" {
		name = claims.UserID
	}
	return domain.Identity{UserID: claims.UserID, Name: name, Roles: claims.Roles}, nil
}

// WithIdentity injects the identity into the context for downstream handlers.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the identity set by WithIdentity, a guest otherwise.
func IdentityFrom(ctx context.Context) domain.Identity {
	if identity, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return identity
	}
	return domain.NewGuest("")
}

// HasRole reports whether the identity carries role.
func HasRole(identity domain.Identity, role domain.Role) bool {
	for _, r := range identity.Roles {
		if domain.Role(r) == role {
			return true
		}
	}
	return false
}
