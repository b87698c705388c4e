package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
)

// GoogleVerifier 通过 Google tokeninfo 接口校验 id_token
// 签名校验由 Google 侧完成，这里只需比对 audience 是否为本应用。
type GoogleVerifier struct {
	cfg config.OAuthProviderConfig
}

// NewGoogleVerifier 创建 Google 校验器
func NewGoogleVerifier(cfg config.OAuthProviderConfig) *GoogleVerifier {
	return &GoogleVerifier{cfg: cfg}
}

// Provider 平台名
func (v *GoogleVerifier) Provider() string {
	return constants.AccountProviderGoogle
}

// Verify 校验 id_token 并返回账号画像
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	endpoint := fmt.Sprintf("%s?id_token=%s", v.cfg.UserInfoURL, url.QueryEscape(token))
	body, err := getJSON(ctx, endpoint, "", v.cfg.TimeoutMS)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sub           string `json:"sub"`
		Aud           string `json:"aud"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if payload.Sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}
	if v.cfg.ClientID != "" && payload.Aud != v.cfg.ClientID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	return &Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: payload.Sub,
		Email:             strings.ToLower(strings.TrimSpace(payload.Email)),
		EmailVerified:     payload.EmailVerified == "true",
		Name:              payload.Name,
		Picture:           payload.Picture,
	}, nil
}
