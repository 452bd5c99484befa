package paypal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plutov/paypal/v4"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"
)

var (
	errClientIDRequired  = errors.New("paypal client id is required")
	errSecretRequired    = errors.New("paypal secret is required")
	errWebhookIDRequired = errors.New("paypal webhook id is required")
	errInvalidPayPalEnv  = fmt.Errorf("paypal environment must be %q or %q", sandboxEnv, liveEnv)
)

// Client wraps the REST SDK together with the storefront's checkout settings.
type Client struct {
	api         *paypal.Client
	environment string
	webhookID   string
	brandName   string
	returnURL   string
	cancelURL   string
}

// NewClient validates the credentials and builds an SDK client for the
// configured environment. The OAuth token is fetched lazily on first call.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	webhookID := strings.TrimSpace(cfg.WebhookID)
	if webhookID == "" {
		return nil, errWebhookIDRequired
	}

	api, err := paypal.NewClient(clientID, secret, baseURL(env))
	if err != nil {
		return nil, fmt.Errorf("create paypal client: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("paypal client initialized (%s)", env))
	}

	return &Client{
		api:         api,
		environment: env,
		webhookID:   webhookID,
		brandName:   strings.TrimSpace(cfg.BrandName),
		returnURL:   strings.TrimSpace(cfg.ReturnURL),
		cancelURL:   strings.TrimSpace(cfg.CancelURL),
	}, nil
}

// API exposes the underlying SDK client.
func (c *Client) API() *paypal.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// WebhookID is the id PayPal assigned to the registered webhook; signature
// verification is scoped to it.
func (c *Client) WebhookID() string {
	if c == nil {
		return ""
	}
	return c.webhookID
}

func (c *Client) BrandName() string {
	if c == nil {
		return ""
	}
	return c.brandName
}

func (c *Client) ReturnURL() string {
	if c == nil {
		return ""
	}
	return c.returnURL
}

func (c *Client) CancelURL() string {
	if c == nil {
		return ""
	}
	return c.cancelURL
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidPayPalEnv
	}
}

func baseURL(env string) string {
	if env == liveEnv {
		return paypal.APIBaseLive
	}
	return paypal.APIBaseSandBox
}
