// Package stripe validates Stripe credentials, configures the SDK backend and
// verifies webhook signatures.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// keyPrefixes lists the secret and restricted key prefixes each environment
// accepts.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

// Client carries validated Stripe credentials. The SDK's resource packages
// (paymentintent, refund) read the key and backend NewClient installs.
type Client struct {
	environment   string
	signingSecret string
}

// NewClient validates cfg and configures the Stripe SDK for this process.
// The SDK's own network retries are disabled; callers wrap provider calls in
// their own retry policy.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	client, apiKey, err := validate(cfg)
	if err != nil {
		return nil, err
	}

	backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)}
	if logg != nil {
		backendCfg.LeveledLogger = &sdkLogger{ctx: logg.WithField(context.WithoutCancel(ctx), "component", "stripe-sdk"), logg: logg}
	}
	stripe.Key = apiKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", client.environment), "stripe client initialized")
	}
	return client, nil
}

// NewWebhookVerifier builds a client that only verifies webhook signatures.
func NewWebhookVerifier(secret string) *Client {
	return &Client{environment: testEnv, signingSecret: strings.TrimSpace(secret)}
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated since only object ids are read.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func validate(cfg config.StripeConfig) (*Client, string, error) {
	env := cfg.Environment()
	allowed, ok := keyPrefixes[env]
	if !ok {
		return nil, "", errInvalidStripeEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, "", errAPIKeyRequired
	case secret == "":
		return nil, "", errSecretRequired
	}
	if !slices.ContainsFunc(allowed, func(prefix string) bool { return strings.HasPrefix(apiKey, prefix) }) {
		return nil, "", fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(allowed, " or "))
	}
	return &Client{environment: env, signingSecret: secret}, apiKey, nil
}

// sdkLogger routes the SDK's leveled log lines to the service logger. Debug
// and info lines from the SDK are request traces and go out at debug.
type sdkLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *sdkLogger) Debugf(format string, v ...any) { l.logg.Debug(l.ctx, fmt.Sprintf(format, v...)) }

func (l *sdkLogger) Infof(format string, v ...any) { l.logg.Debug(l.ctx, fmt.Sprintf(format, v...)) }

func (l *sdkLogger) Warnf(format string, v ...any) { l.logg.Warn(l.ctx, fmt.Sprintf(format, v...)) }

func (l *sdkLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, fmt.Sprintf(format, v...), nil)
}
