package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const identityKey ctxKey = 1

// Identity is the verified user resolved by the auth collaborator before the
// engine sees any request.
type Identity struct {
	UserID    string
	Username  string
	AvatarURL string
}

// WithIdentity adds a verified identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx extracts the verified identity, if any.
func IdentityFromCtx(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// JWT wraps a signing secret for issuing/verifying tokens.
type JWT struct{ secret []byte }

func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks a token and returns the identity claims.
func (j *JWT) Verify(tok string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	uid, _ := claims["sub"].(string)
	if uid == "" {
		return Identity{}, errors.New("no sub")
	}
	name, _ := claims["name"].(string)
	avatar, _ := claims["avatar"].(string)

	return Identity{UserID: uid, Username: name, AvatarURL: avatar}, nil
}

// Sign creates a token for the identity with the given TTL.
func (j *JWT) Sign(id Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("empty user id")
	}
	claims := jwt.MapClaims{
		"sub":    id.UserID,
		"name":   id.Username,
		"avatar": id.AvatarURL,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}
