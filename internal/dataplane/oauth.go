package dataplane

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
)

// OAuthClient exchanges a bot's long-lived refresh credential for a
// fresh access token at the FACEIT OAuth endpoint.
type OAuthClient interface {
	Refresh(refreshToken string) (accessToken, newRefreshToken string, err error)
}

type FaceitOAuth struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewFaceitOAuth(tokenURL, clientID, clientSecret string) *FaceitOAuth {
	return &FaceitOAuth{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (o *FaceitOAuth) Refresh(refreshToken string) (string, string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequest(http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("request: %w", err)
	}
	req.SetBasicAuth(o.clientID, o.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("oauth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("oauth: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("oauth: read: %w", err)
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", "", fmt.Errorf("oauth: unmarshal: %w", err)
	}
	if out.AccessToken == "" {
		return "", "", fmt.Errorf("oauth: empty access token")
	}
	return out.AccessToken, out.RefreshToken, nil
}

// TokenService throttles upstream refreshes. The persisted
// last-refresh timestamp is the cross-restart source of truth; the
// per-bot limiter additionally collapses concurrent forced calls
// inside one process.
type TokenService struct {
	db           *gorm.DB
	oauth        OAuthClient
	minAge       time.Duration
	forcedMinAge time.Duration
	now          func() time.Time

	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

func NewTokenService(db *gorm.DB, oauth OAuthClient, minAge, forcedMinAge time.Duration) *TokenService {
	return &TokenService{
		db:           db,
		oauth:        oauth,
		minAge:       minAge,
		forcedMinAge: forcedMinAge,
		now:          time.Now,
		limiters:     make(map[int]*rate.Limiter),
	}
}

func (t *TokenService) limiter(botID int) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[botID]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.forcedMinAge), 1)
		t.limiters[botID] = l
	}
	return l
}

// MaybeRefresh refreshes the bot's access token when its age permits:
// a non-forced call only past minAge, a forced call only past
// forcedMinAge. The bot struct is updated in place on refresh.
func (t *TokenService) MaybeRefresh(bot *models.Bot, force bool) error {
	age := t.now().Sub(bot.LastTokenRefresh)
	if !force && age < t.minAge {
		return nil
	}
	if force && age < t.forcedMinAge {
		return nil
	}
	if force && !t.limiter(bot.ID).Allow() {
		return nil
	}

	access, refresh, err := t.oauth.Refresh(bot.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh bot %d: %w", bot.ID, err)
	}

	bot.AccessToken = access
	if refresh != "" {
		bot.RefreshToken = refresh
	}
	bot.LastTokenRefresh = t.now()

	return t.db.Model(&models.Bot{}).Where("id = ?", bot.ID).Updates(map[string]interface{}{
		"access_token":       bot.AccessToken,
		"refresh_token":      bot.RefreshToken,
		"last_token_refresh": bot.LastTokenRefresh,
	}).Error
}
