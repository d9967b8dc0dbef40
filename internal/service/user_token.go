package service

import (
	"errors"
	"strings"
	"time"

	"github.com/bazaar-next/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid 令牌无效或已过期
var ErrTokenInvalid = errors.New("token invalid")

// UserClaims 用户 JWT 声明
type UserClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueUserToken 签发用户 token，身份由上游账号系统确认
func IssueUserToken(cfg config.JWTConfig, userID uint) (string, time.Time, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" || userID == 0 {
		return "", time.Time{}, ErrInvalidInput
	}
	hours := cfg.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	now := time.Now()
	expiresAt := now.Add(time.Duration(hours) * time.Hour)
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseUserToken 校验 HS256 签名并取出用户声明
func ParseUserToken(secret, tokenString string) (*UserClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &UserClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
