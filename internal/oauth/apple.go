package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"

	"github.com/golang-jwt/jwt/v5"
)

// AppleVerifier 本地校验 Sign in with Apple 的 id_token
// Apple 不提供 tokeninfo 类接口，需要拉取 JWKS 公钥自行验签。
type AppleVerifier struct {
	cfg config.OAuthProviderConfig

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
}

// NewAppleVerifier 创建 Apple 校验器
func NewAppleVerifier(cfg config.OAuthProviderConfig) *AppleVerifier {
	return &AppleVerifier{cfg: cfg, keys: map[string]*rsa.PublicKey{}}
}

// Provider 平台名
func (v *AppleVerifier) Provider() string {
	return constants.AccountProviderApple
}

type appleClaims struct {
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"` // Apple 有时发 bool，有时发字符串 "true"
	jwt.RegisteredClaims
}

// Verify 校验 id_token 并返回账号画像
// Apple 不在 id_token 里携带昵称头像，首次注册时由上层用邮箱前缀兜底。
func (v *AppleVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.ClientID != "" {
		options = append(options, jwt.WithAudience(v.cfg.ClientID))
	}

	claims := &appleClaims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrTokenInvalid)
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}

	return &Profile{
		Provider:          constants.AccountProviderApple,
		ProviderAccountID: claims.Subject,
		Email:             strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified:     appleEmailVerified(claims.EmailVerified),
	}, nil
}

func appleEmailVerified(raw interface{}) bool {
	switch value := raw.(type) {
	case bool:
		return value
	case string:
		return value == "true"
	}
	return false
}

// publicKey 取 kid 对应的公钥，未命中时重新拉取一次 JWKS（应对 Apple 轮换密钥）
func (v *AppleVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	if err := v.refreshKeysLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kid %s", ErrTokenInvalid, kid)
	}
	return key, nil
}

func (v *AppleVerifier) refreshKeysLocked(ctx context.Context) error {
	body, err := getJSON(ctx, v.cfg.JWKSURL, "", v.cfg.TimeoutMS)
	if err != nil {
		return err
	}

	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, raw := range jwks.Keys {
		if raw.Kty != "RSA" || raw.Kid == "" {
			continue
		}
		key, err := parseRSAPublicKey(raw.N, raw.E)
		if err != nil {
			continue
		}
		keys[raw.Kid] = key
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty jwks", ErrResponseInvalid)
	}
	v.keys = keys
	return nil
}

func parseRSAPublicKey(rawN, rawE string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(rawN)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(rawE)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
