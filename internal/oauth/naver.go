package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
)

// NaverVerifier 通过 Naver 用户信息接口校验 access_token
type NaverVerifier struct {
	cfg config.OAuthProviderConfig
}

// NewNaverVerifier 创建 Naver 校验器
func NewNaverVerifier(cfg config.OAuthProviderConfig) *NaverVerifier {
	return &NaverVerifier{cfg: cfg}
}

// Provider 平台名
func (v *NaverVerifier) Provider() string {
	return constants.AccountProviderNaver
}

// Verify 校验 access_token 并返回账号画像
// Naver 返回的邮箱是账号注册邮箱，平台侧已验证过所有权，
// 但绑定策略仍把 naver 归为不可信平台，不做自动绑定。
func (v *NaverVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	body, err := getJSON(ctx, v.cfg.UserInfoURL, token, v.cfg.TimeoutMS)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ResultCode string `json:"resultcode"`
		Message    string `json:"message"`
		Response   struct {
			ID           string `json:"id"`
			Email        string `json:"email"`
			Name         string `json:"name"`
			Nickname     string `json:"nickname"`
			ProfileImage string `json:"profile_image"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if payload.ResultCode != "00" {
		return nil, fmt.Errorf("%w: resultcode %s", ErrTokenInvalid, payload.ResultCode)
	}
	if payload.Response.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrTokenInvalid)
	}

	name := payload.Response.Name
	if name == "" {
		name = payload.Response.Nickname
	}

	return &Profile{
		Provider:          constants.AccountProviderNaver,
		ProviderAccountID: payload.Response.ID,
		Email:             strings.ToLower(strings.TrimSpace(payload.Response.Email)),
		EmailVerified:     payload.Response.Email != "",
		Name:              name,
		Picture:           payload.Response.ProfileImage,
	}, nil
}
