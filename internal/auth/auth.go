package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dinehub/realtime-gateway/internal/domain"
)

// Claims is the credential token payload issued by the identity collaborator.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id"`
	Role         string   `json:"role"`
	Applications []string `json:"applications,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// AuthenticatedUser is the verified identity used to construct a Connection.
// It is transient and never persisted by the gateway.
type AuthenticatedUser struct {
	UserID       string
	TenantID     string
	Role         domain.Role
	Applications []domain.ApplicationType
	Permissions  []string
}

// MayJoin reports whether the identity may connect as the given application.
func (u *AuthenticatedUser) MayJoin(app domain.ApplicationType) bool {
	for _, a := range u.Applications {
		if a == app {
			return true
		}
	}
	return false
}

// Authenticator verifies HMAC-signed credential tokens. Verification is pure:
// it has no side effects on gateway state.
type Authenticator struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

func NewAuthenticator(secret, issuer string, tokenTTL time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	return &Authenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		tokenTTL: tokenTTL,
	}, nil
}

// Verify checks signature and expiry and maps the claims to an
// AuthenticatedUser. All failures wrap domain.ErrAuthentication.
func (a *Authenticator) Verify(tokenString string) (*AuthenticatedUser, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", domain.ErrAuthentication)
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing identity claims", domain.ErrAuthentication)
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrAuthentication, claims.Role)
	}

	apps, err := allowedApplications(role, claims.Applications)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}

	return &AuthenticatedUser{
		UserID:       claims.UserID,
		TenantID:     claims.TenantID,
		Role:         role,
		Applications: apps,
		Permissions:  claims.Permissions,
	}, nil
}

// Issue signs a token for the given identity. Used by tests and by the
// operator token endpoint; production tokens come from the identity service.
func (a *Authenticator) Issue(userID, tenantID string, role domain.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		UserID:   userID,
		TenantID: tenantID,
		Role:     string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// allowedApplications intersects the token's declared applications with the
// role's grants. An empty declaration means the full role grant.
func allowedApplications(role domain.Role, declared []string) ([]domain.ApplicationType, error) {
	granted := role.Applications()
	if len(declared) == 0 {
		return granted, nil
	}

	var apps []domain.ApplicationType
	for _, d := range declared {
		app, err := domain.ParseApplicationType(d)
		if err != nil {
			return nil, err
		}
		if !role.MayJoin(app) {
			return nil, fmt.Errorf("role %s may not join %s", role, app)
		}
		apps = append(apps, app)
	}
	return apps, nil
}
