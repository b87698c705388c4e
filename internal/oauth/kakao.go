package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
)

// KakaoVerifier 通过 Kakao 用户信息接口校验 access_token
type KakaoVerifier struct {
	cfg config.OAuthProviderConfig
}

// NewKakaoVerifier 创建 Kakao 校验器
func NewKakaoVerifier(cfg config.OAuthProviderConfig) *KakaoVerifier {
	return &KakaoVerifier{cfg: cfg}
}

// Provider 平台名
func (v *KakaoVerifier) Provider() string {
	return constants.AccountProviderKakao
}

// Verify 校验 access_token 并返回账号画像
// Kakao 的邮箱授权是可选项，email 可能为空；为空时上层按"无可信邮箱"处理。
func (v *KakaoVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	body, err := getJSON(ctx, v.cfg.UserInfoURL, token, v.cfg.TimeoutMS)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID           int64 `json:"id"`
		KakaoAccount struct {
			Email           string `json:"email"`
			IsEmailVerified bool   `json:"is_email_verified"`
			IsEmailValid    bool   `json:"is_email_valid"`
			Profile         struct {
				Nickname        string `json:"nickname"`
				ProfileImageURL string `json:"profile_image_url"`
			} `json:"profile"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if payload.ID == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrTokenInvalid)
	}

	return &Profile{
		Provider:          constants.AccountProviderKakao,
		ProviderAccountID: strconv.FormatInt(payload.ID, 10),
		Email:             strings.ToLower(strings.TrimSpace(payload.KakaoAccount.Email)),
		EmailVerified:     payload.KakaoAccount.IsEmailVerified && payload.KakaoAccount.IsEmailValid,
		Name:              payload.KakaoAccount.Profile.Nickname,
		Picture:           payload.KakaoAccount.Profile.ProfileImageURL,
	}, nil
}
