package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
)

// EntityConfig is the data-plane's view of one room, with the dynamic
// blobs already validated and decoded.
type EntityConfig struct {
	Guid            string                    `json:"guid"`
	Name            string                    `json:"name"`
	Type            string                    `json:"type"`
	ParentGuid      string                    `json:"parent_guid,omitempty"`
	Commands        map[string]models.Command `json:"commands"`
	Timers          []models.Timer            `json:"timers"`
	TimerCounterMax int                       `json:"timer_counter_max"`
	ReadOnly        bool                      `json:"read_only"`
	WelcomeMessage  string                    `json:"welcome_message,omitempty"`
}

type BotConfig struct {
	BotGuid  string `json:"bot_guid"`
	BotToken string `json:"bot_token"`
	Nickname string `json:"nickname"`
}

type ProfanityConfig struct {
	EntityGuid          string   `json:"entity_guid"`
	PresetID            *int     `json:"preset_id,omitempty"`
	CustomWords         []string `json:"custom_words"`
	WebhookURL          string   `json:"webhook_url,omitempty"`
	WebhookMessage      string   `json:"webhook_message,omitempty"`
	ReplyMessage        string   `json:"reply_message,omitempty"`
	MuteDurationSeconds int      `json:"mute_duration_seconds"`
	Active              bool     `json:"active"`
	ManagerGuids        []string `json:"manager_guids"`
}

type Preset struct {
	PresetID   int      `json:"preset_id"`
	PresetName string   `json:"preset_name"`
	Language   string   `json:"language"`
	Words      []string `json:"words"`
}

type ActiveBot struct {
	BotID int `json:"bot_id"`
}

// NotFoundError marks a 404 from the data-plane so callers can tell an
// absent row from a transport failure.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("data-plane: %s: not found", e.Path)
}

// Client is the typed HTTP client workers and the manager use against
// the data-plane service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Health() error {
	var out map[string]string
	return c.get("/health", &out)
}

func (c *Client) ActiveBots() ([]ActiveBot, error) {
	var out []ActiveBot
	if err := c.get("/bots/active", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BotConfig(botID int, force bool) (*BotConfig, error) {
	path := fmt.Sprintf("/bots/%d/config", botID)
	if force {
		path += "?force=1"
	}
	var out BotConfig
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BotEntities(botID int) (map[string]EntityConfig, error) {
	var out map[string]EntityConfig
	if err := c.get(fmt.Sprintf("/bots/%d/entities", botID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EntityData(entityGuid string) (*EntityConfig, error) {
	var out EntityConfig
	if err := c.get("/entities/"+entityGuid+"/data", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProfanityConfig(entityGuid string) (*ProfanityConfig, error) {
	var out ProfanityConfig
	if err := c.get("/profanity-filter-config/"+entityGuid, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Preset(presetID int) (*Preset, error) {
	var out Preset
	if err := c.get(fmt.Sprintf("/profanity-filter-presets/%d", presetID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkEntityStatus flips an entity's status, used by workers when the
// upstream reports a room gone.
func (c *Client) MarkEntityStatus(entityGuid, status string) error {
	body, _ := json.Marshal(map[string]string{"status": status})
	return c.post("/entities/"+entityGuid+"/status", body)
}

func (c *Client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, nil)
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("data-plane: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Path: path}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("data-plane: %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("data-plane: %s: read: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("data-plane: %s: unmarshal: %w", path, err)
	}
	return nil
}
