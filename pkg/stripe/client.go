// Package stripe holds the Stripe credentials for one account mode and
// verifies webhook signatures.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

const defaultCurrency = "usd"

// keyPrefixes lists the secret and restricted key prefixes per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
	errUnknownMode    = fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
)

// Client carries what the payment gateway and webhook endpoint need.
type Client struct {
	mode          Mode
	signingSecret string
	currency      string
	tolerance     time.Duration
}

// NewClient checks that the key matches the configured mode and installs it
// for the stripe-go resource packages.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}
	if !keyMatches(mode, apiKey) {
		return nil, fmt.Errorf("stripe %s mode requires a %s key (%s)", mode, mode, strings.Join(keyPrefixes[mode], ", "))
	}
	stripe.Key = apiKey

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return &Client{
		mode:          mode,
		signingSecret: secret,
		currency:      currency,
		tolerance:     tolerance,
	}, nil
}

func parseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return mode, nil
	default:
		return "", errUnknownMode
	}
}

func keyMatches(mode Mode, key string) bool {
	for _, prefix := range keyPrefixes[mode] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Mode reports the account mode in use.
func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// Currency is the ISO currency code used for checkout sessions.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// VerifyEvent checks the Stripe-Signature header against the signing secret
// and decodes the event.
func (c *Client) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, errors.New("stripe client not initialized")
	}
	return webhook.ConstructEventWithOptions(payload, header, c.signingSecret, webhook.ConstructEventOptions{
		Tolerance: c.tolerance,
	})
}
