package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
)

// Credentials is the single administrator account.
type Credentials struct {
	Username     string
	PasswordHash []byte
}

// NewCredentials builds the admin account from configuration. A bcrypt hash
// is used as is; a plaintext password is hashed once here so it is never
// compared in the clear.
func NewCredentials(username, password, passwordHash string) (*Credentials, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		return &Credentials{Username: username, PasswordHash: []byte(passwordHash)}, nil
	}
	if password == "" {
		return nil, fmt.Errorf("admin password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Credentials{Username: username, PasswordHash: hash}, nil
}

// Verify reports whether username and password match the account.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password))
	return userOK && passErr == nil
}

// TokenIssuer signs admin session tokens.
type TokenIssuer struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
	now        func() time.Time
}

func NewTokenIssuer(signingKey []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{SigningKey: signingKey, Issuer: issuer, TTL: ttl, now: time.Now}
}

// Issue returns a signed token for subject and its expiry.
func (t *TokenIssuer) Issue(subject, role string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type LoginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      LoginUser `json:"user"`
}

type LoginUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginHandler exchanges the admin username and password for a bearer token.
func LoginHandler(creds *Credentials, issuer *TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return apierr.FromBind(err, "Invalid request body")
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			return apierr.Validation("Username and password are required", "username", "password")
		}

		if !creds.Verify(req.Username, req.Password) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
		}

		token, exp, err := issuer.Issue(req.Username, RoleAdmin)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, LoginResponse{
			Success:   true,
			Message:   "Login successful",
			Token:     token,
			ExpiresAt: exp.UTC(),
			User:      LoginUser{Username: req.Username, Role: RoleAdmin},
		})
	}
}
