// Package auth verifies bearer tokens and resolves the acting
// principal for the mutation pipeline.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// Claims is the token payload this service issues and accepts. Role
// normalization against the canonical alias table happens later, in
// the authorization stage.
type Claims struct {
	Role      string `json:"role"`
	ActorType string `json:"actor_type,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
	}
}

// Authenticate parses a bearer token and resolves the actor behind
// it. Every failure maps to the same 401 so callers cannot probe
// which check rejected them.
func (v *Verifier) Authenticate(authorization string) (domain.Actor, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authorization), "Bearer "))
	if raw == "" {
		return domain.Actor{}, util.NewUnauthorized("missing bearer token")
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil || !token.Valid {
		return domain.Actor{}, util.NewUnauthorized("bearer token is invalid")
	}

	actorID := strings.TrimSpace(claims.Subject)
	if actorID == "" || strings.TrimSpace(claims.Role) == "" {
		return domain.Actor{}, util.NewUnauthorized("token is missing actor identity")
	}

	actorType := domain.ActorType(strings.ToUpper(strings.TrimSpace(claims.ActorType)))
	switch actorType {
	case domain.ActorTypeHuman, domain.ActorTypeAgent, domain.ActorTypeSystem:
	default:
		actorType = domain.ActorTypeHuman
	}

	return domain.Actor{
		ID:   actorID,
		Role: claims.Role,
		Type: actorType,
	}, nil
}

// Issue mints a token for the given actor, primarily for local
// development and tests.
func (v *Verifier) Issue(actor domain.Actor, registered jwt.RegisteredClaims) (string, error) {
	if registered.Subject == "" {
		registered.Subject = actor.ID
	}
	if v.issuer != "" && registered.Issuer == "" {
		registered.Issuer = v.issuer
	}
	if v.audience != "" && len(registered.Audience) == 0 {
		registered.Audience = jwt.ClaimStrings{v.audience}
	}
	claims := &Claims{
		Role:             actor.Role,
		ActorType:        string(actor.Type),
		RegisteredClaims: registered,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
