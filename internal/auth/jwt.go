package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HS256 bearer tokens issued by the identity service and
// turns them into an Actor. Issuing tokens is not this service's job; Sign
// exists for tooling and tests.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func (v *Verifier) Verify(token string) (Actor, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(10*time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, ErrTokenExpired
		}
		return Actor{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return Actor{}, ErrTokenInvalid
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrTokenInvalid)
	}
	role := Role(c.Role)
	if !role.IsValid() {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, c.Role)
	}

	return Actor{UserID: id, Role: role}, nil
}

func (v *Verifier) Sign(a Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   a.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(a.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
