// Package oauth 封装各第三方登录方的凭证校验
// 每个实现把平台下发的凭证（id_token 或 access_token）换成统一的 Profile，
// 上层服务不感知各家的接口差异。
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
)

var (
	ErrProviderUnknown  = errors.New("oauth provider unknown")
	ErrProviderDisabled = errors.New("oauth provider disabled")
	ErrTokenInvalid     = errors.New("oauth token invalid")
	ErrResponseInvalid  = errors.New("oauth response invalid")
)

// Profile 第三方账号画像
// ProviderAccountID 是平台侧的稳定用户标识，邮箱可能缺失或未验证。
type Profile struct {
	Provider          string
	ProviderAccountID string
	Email             string
	EmailVerified     bool
	Name              string
	Picture           string
}

// Verifier 第三方凭证校验器
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, token string) (*Profile, error)
}

// Registry 校验器注册表，按平台名索引
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry 根据配置构建注册表，只注册启用的平台
func NewRegistry(cfg *config.OAuthConfig) *Registry {
	r := &Registry{verifiers: map[string]Verifier{}}
	if cfg == nil {
		return r
	}
	if cfg.Apple.Enabled {
		r.register(NewAppleVerifier(cfg.Apple))
	}
	if cfg.Google.Enabled {
		r.register(NewGoogleVerifier(cfg.Google))
	}
	if cfg.Kakao.Enabled {
		r.register(NewKakaoVerifier(cfg.Kakao))
	}
	if cfg.Naver.Enabled {
		r.register(NewNaverVerifier(cfg.Naver))
	}
	return r
}

func (r *Registry) register(v Verifier) {
	if v == nil {
		return
	}
	r.verifiers[v.Provider()] = v
}

// Resolve 按平台名取校验器
func (r *Registry) Resolve(provider string) (Verifier, error) {
	switch provider {
	case constants.AccountProviderApple, constants.AccountProviderGoogle, constants.AccountProviderKakao, constants.AccountProviderNaver:
	default:
		return nil, ErrProviderUnknown
	}
	v, ok := r.verifiers[provider]
	if !ok {
		return nil, ErrProviderDisabled
	}
	return v, nil
}

// Providers 已启用的平台名列表
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	return names
}

// 所有平台共用一个连接池，单次调用超时由各自配置控制
var httpClient = &http.Client{Timeout: 15 * time.Second}

func callTimeout(timeoutMS int) time.Duration {
	if timeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(timeoutMS) * time.Millisecond
}

func getJSON(ctx context.Context, url string, bearer string, timeoutMS int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout(timeoutMS))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: http status %d", ErrTokenInvalid, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrResponseInvalid, resp.StatusCode)
	}
	return body, nil
}
