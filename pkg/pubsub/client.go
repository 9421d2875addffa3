// Package pubsub wraps the Pub/Sub v2 client for the order events topic, its
// worker subscription and the optional dead-letter topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const (
	collectionTopics        = "topics"
	collectionSubscriptions = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client holds one Pub/Sub connection for the process.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects to Pub/Sub and verifies that the orders topic and
// subscription exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: projectID, cfg: cfg}
	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.OrdersTopic,
			"subscription": cfg.OrdersSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// verify checks every configured resource. Blank names are skipped except the
// orders topic, which every process needs.
func (c *Client) verify(ctx context.Context) error {
	topic := resourceName(c.projectID, collectionTopics, c.cfg.OrdersTopic)
	if topic == "" {
		return errors.New("pubsub orders topic is required")
	}
	if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		return notFoundOr(err, "topic", topic)
	}
	if sub := resourceName(c.projectID, collectionSubscriptions, c.cfg.OrdersSubscription); sub != "" {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
		if err != nil {
			return notFoundOr(err, "subscription", sub)
		}
	}
	if dlq := resourceName(c.projectID, collectionTopics, c.cfg.DLQTopic); dlq != "" {
		if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: dlq}); err != nil {
			return notFoundOr(err, "dead-letter topic", dlq)
		}
	}
	return nil
}

func notFoundOr(err error, kind, name string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// OrdersSubscriber returns the worker's subscriber, or nil when no
// subscription is configured.
func (c *Client) OrdersSubscriber() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := resourceName(c.projectID, collectionSubscriptions, c.cfg.OrdersSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := resourceName(c.projectID, collectionTopics, topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

// DeadLetter returns a forwarder for the dead-letter topic, or nil when none
// is configured.
func (c *Client) DeadLetter() *DeadLetter {
	pub := c.Publisher(c.cfgDLQ())
	if pub == nil {
		return nil
	}
	return &DeadLetter{publisher: pub}
}

func (c *Client) cfgDLQ() string {
	if c == nil {
		return ""
	}
	return c.cfg.DLQTopic
}

// Ping re-runs the resource checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<collection>/<id>. Full
// resource names pass through untouched.
func resourceName(projectID, collection, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+collection+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, collection, n)
}
