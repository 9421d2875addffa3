package pubsub

import (
	"context"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/farmlink-prod/subscriptions/orders-worker",
		resourceName("farmlink-prod", collectionSubscriptions, "orders-worker"))
	assert.Equal(t, "projects/other/subscriptions/x",
		resourceName("farmlink-prod", collectionSubscriptions, "projects/other/subscriptions/x"))
	assert.Equal(t, "projects/farmlink-prod/topics/order-events",
		resourceName("farmlink-prod", collectionTopics, " order-events "))
	assert.Equal(t, "projects/farmlink-prod/topics/projects/other/subscriptions/x",
		resourceName("farmlink-prod", collectionTopics, "projects/other/subscriptions/x"))
	assert.Empty(t, resourceName("farmlink-prod", collectionTopics, ""))
	assert.Empty(t, resourceName("", collectionTopics, "order-events"))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.OrdersSubscriber())
	assert.Nil(t, c.Publisher("order-events"))
	assert.Nil(t, c.DeadLetter())
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestDeadLetterRequiresPublisher(t *testing.T) {
	var d *DeadLetter
	assert.Error(t, d.Forward(context.Background(), &gcppubsub.Message{ID: "m"}, nil))
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/c"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}
