package credential

import (
	"context"
	"fmt"

	internalhttp "github.com/kiro-gateway/gateway/pkg/internal/http"
)

// HTTPRefresher is the production Refresher: it posts to the
// configured Social/IdC refresh endpoints and the quota endpoint, per
// spec §4.H/§6.
type HTTPRefresher struct {
	client    *internalhttp.Client
	socialURL string
	idcURL    string
	quotaURL  string
}

func NewHTTPRefresher(client *internalhttp.Client, socialURL, idcURL, quotaURL string) *HTTPRefresher {
	return &HTTPRefresher{client: client, socialURL: socialURL, idcURL: idcURL, quotaURL: quotaURL}
}

type refreshResponseBody struct {
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int    `json:"expiresIn"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ProfileArn   string `json:"profileArn,omitempty"`
}

// RefreshToken implements spec §4.H's Refresh step: a Social config
// POSTs just the refresh token; an IdC config also carries its client
// id/secret and an explicit grant type.
func (r *HTTPRefresher) RefreshToken(ctx context.Context, cfg Config) (RefreshResult, error) {
	var body interface{}
	var url string

	switch cfg.Auth {
	case AuthSocial:
		url = r.socialURL
		body = map[string]string{"refreshToken": cfg.RefreshToken}
	case AuthIdC:
		url = r.idcURL
		body = map[string]string{
			"clientId":     cfg.ClientID,
			"clientSecret": cfg.ClientSecret,
			"grantType":    "refresh_token",
			"refreshToken": cfg.RefreshToken,
		}
	default:
		return RefreshResult{}, fmt.Errorf("unknown credential auth method %q", cfg.Auth)
	}

	var resp refreshResponseBody
	if err := r.client.PostJSON(ctx, url, body, &resp); err != nil {
		return RefreshResult{}, fmt.Errorf("refresh request failed: %w", err)
	}

	return RefreshResult{
		AccessToken:  resp.AccessToken,
		ExpiresIn:    resp.ExpiresIn,
		RefreshToken: resp.RefreshToken,
		ProfileArn:   resp.ProfileArn,
	}, nil
}

type usageLimitEntry struct {
	ResourceType              string         `json:"resourceType"`
	UsageLimitWithPrecision   float64        `json:"usageLimitWithPrecision"`
	CurrentUsageWithPrecision float64        `json:"currentUsageWithPrecision"`
	FreeTrialInfo             *freeTrialInfo `json:"freeTrialInfo,omitempty"`
}

type freeTrialInfo struct {
	FreeTrialStatus           string  `json:"freeTrialStatus"`
	UsageLimitWithPrecision   float64 `json:"usageLimitWithPrecision"`
	CurrentUsageWithPrecision float64 `json:"currentUsageWithPrecision"`
}

type quotaResponseBody struct {
	UsageBreakdownList []usageLimitEntry `json:"usageBreakdownList"`
}

// ProbeQuota implements spec §4.H's quota probe: sum
// (usageLimitWithPrecision - currentUsageWithPrecision) over CREDIT
// entries, plus the same difference from each entry's freeTrialInfo
// when its status is ACTIVE, clamped to ≥ 0.
func (r *HTTPRefresher) ProbeQuota(ctx context.Context, accessToken string) (int, interface{}, error) {
	var resp quotaResponseBody
	req := internalhttp.Request{
		Method:  "GET",
		Path:    r.quotaURL,
		Headers: map[string]string{"Authorization": "Bearer " + accessToken},
	}
	if err := r.client.DoJSON(ctx, req, &resp); err != nil {
		return 0, nil, fmt.Errorf("quota probe failed: %w", err)
	}

	total := 0.0
	for _, entry := range resp.UsageBreakdownList {
		if entry.ResourceType != "CREDIT" {
			continue
		}
		total += entry.UsageLimitWithPrecision - entry.CurrentUsageWithPrecision
		if trial := entry.FreeTrialInfo; trial != nil && trial.FreeTrialStatus == "ACTIVE" {
			total += trial.UsageLimitWithPrecision - trial.CurrentUsageWithPrecision
		}
	}
	if total < 0 {
		total = 0
	}
	return int(total), resp, nil
}
