// Package auth разбирает токены владельцев, выпущенные внешней системой аутентификации.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/tempizhere/redirector/internal/models"
)

var (
	// ErrInvalidToken токен не прошёл проверку подписи или срока действия
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoToken в заголовке нет токена
	ErrNoToken = errors.New("no bearer token")
)

// Claims описывает поля токена владельца
type Claims struct {
	jwt.RegisteredClaims
	// Quota число ссылок, которое разрешено владельцу тарифом
	Quota int `json:"quota"`
}

// BearerToken извлекает токен из значения заголовка Authorization
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(token), nil
}

// ParseOwner проверяет токен и возвращает владельца
func ParseOwner(secret, tokenString string) (*models.Owner, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Quota < 0 {
		return nil, fmt.Errorf("%w: negative quota", ErrInvalidToken)
	}
	return &models.Owner{ID: claims.Subject, Quota: claims.Quota}, nil
}

// IssueToken подписывает токен для владельца; используется в тестах и локальной разработке
func IssueToken(secret string, owner models.Owner, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Quota: owner.Quota,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
