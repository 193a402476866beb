// Package auth issues and checks coarse operator tokens. There are exactly two
// roles, admin and staff, and the check is per request group, not per action.
// Credentials are configuration, never literals in source.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

var ErrBadCredentials = errors.New("invalid username or password")

type Service struct {
	Secret    []byte
	AdminUser string
	AdminPass string
	StaffUser string
	StaffPass string
	TokenTTL  time.Duration
}

func (s *Service) Login(username, password string) (string, Role, error) {
	var role Role
	switch {
	case s.AdminPass != "" && username == s.AdminUser && password == s.AdminPass:
		role = RoleAdmin
	case s.StaffPass != "" && username == s.StaffUser && password == s.StaffPass:
		role = RoleStaff
	default:
		return "", "", ErrBadCredentials
	}

	ttl := s.TokenTTL
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	claims := jwt.MapClaims{
		"sub":  username,
		"role": string(role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", "", err
	}
	return token, role, nil
}

func (s *Service) Parse(tokenString string) (Role, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	role, _ := claims["role"].(string)
	switch Role(role) {
	case RoleAdmin, RoleStaff:
		return Role(role), nil
	}
	return "", errors.New("unknown role")
}

// Require guards a route group. Admin passes staff-level checks too.
func (s *Service) Require(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			role, err := s.Parse(raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if min == RoleAdmin && role != RoleAdmin {
				http.Error(w, "admin only", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
