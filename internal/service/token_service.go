package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/tasknest-next/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 令牌类型声明值
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenService 令牌签发与校验服务
// 无共享状态，给定配置（密钥与有效期）后所有方法均无副作用。
type TokenService struct {
	cfg *config.Config
}

// NewTokenService 创建令牌服务
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{cfg: cfg}
}

// AccessClaims 访问令牌声明
type AccessClaims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	SessionID uint   `json:"session_id"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims 刷新令牌声明
// 额外携带令牌族与版本，供轮换时做乐观并发校验。
type RefreshClaims struct {
	UserID       uint   `json:"user_id"`
	SessionID    uint   `json:"session_id"`
	TokenFamily  string `json:"token_family"`
	TokenVersion uint64 `json:"token_version"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair 一次签发的令牌对
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// GenerateTokenFamily 生成令牌族标识
// 会话生命周期内保持不变，轮换出的每一代刷新令牌都属于同一族。
func (s *TokenService) GenerateTokenFamily() string {
	return uuid.NewString()
}

// RefreshTokenTTL 刷新令牌有效期，同时也是会话有效期
func (s *TokenService) RefreshTokenTTL() time.Duration {
	return time.Duration(resolveRefreshExpireHours(s.cfg.JWT)) * time.Hour
}

// AccessTokenTTL 访问令牌有效期
func (s *TokenService) AccessTokenTTL() time.Duration {
	return time.Duration(resolveAccessExpireMinutes(s.cfg.JWT)) * time.Minute
}

// GenerateTokenPair 签发一对访问/刷新令牌
func (s *TokenService) GenerateTokenPair(userID uint, email string, sessionID uint, tokenFamily string, tokenVersion uint64) (*TokenPair, error) {
	now := time.Now()
	accessExpiresAt := now.Add(time.Duration(resolveAccessExpireMinutes(s.cfg.JWT)) * time.Minute)
	refreshExpiresAt := now.Add(time.Duration(resolveRefreshExpireHours(s.cfg.JWT)) * time.Hour)

	accessClaims := AccessClaims{
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return nil, err
	}

	refreshClaims := RefreshClaims{
		UserID:       userID,
		SessionID:    sessionID,
		TokenFamily:  tokenFamily,
		TokenVersion: tokenVersion,
		TokenType:    tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(refreshExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// HashRefreshToken 计算刷新令牌的存储哈希
// 确定性单向摘要，数据库只存哈希，原始令牌不落库。
func (s *TokenService) HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyAccessToken 校验访问令牌
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.TokenType != tokenTypeAccess {
		return nil, errors.New("无效的访问令牌")
	}
	return claims, nil
}

// VerifyRefreshToken 校验刷新令牌
func (s *TokenService) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &RefreshClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.TokenType != tokenTypeRefresh {
		return nil, errors.New("无效的刷新令牌")
	}
	return claims, nil
}

func resolveAccessExpireMinutes(cfg config.JWTConfig) int {
	if cfg.AccessExpireMinutes <= 0 {
		return 15
	}
	return cfg.AccessExpireMinutes
}

func resolveRefreshExpireHours(cfg config.JWTConfig) int {
	if cfg.RefreshExpireHours <= 0 {
		return 14 * 24
	}
	return cfg.RefreshExpireHours
}
