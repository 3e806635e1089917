package testserver

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var errWrongKind = errors.New("wrong token kind")

// Claims are carried by both token kinds. Generation lets the server
// invalidate every access token at once.
type Claims struct {
	jwt.RegisteredClaims
	Kind       string `json:"kind"`
	Generation int    `json:"gen,omitempty"`
}

func (s *Server) issue(userID, kind string, gen int, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:       kind,
		Generation: gen,
	})
	return token.SignedString(s.secret)
}

func (s *Server) parse(tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, errWrongKind
	}
	return claims, nil
}
