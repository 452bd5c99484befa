package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brickapparel/storefront-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/orders", resourceName("p1", "topics", " orders "))
	require.Equal(t, "projects/other/topics/orders", resourceName("p1", "topics", "projects/other/topics/orders"))
	require.Equal(t, "projects/p1/subscriptions/analytics", resourceName("p1", "subscriptions", "analytics"))
	require.Empty(t, resourceName("p1", "topics", ""))
	require.Empty(t, resourceName("", "topics", "orders"))
}

func TestConfiguredNames(t *testing.T) {
	cfg := config.PubSubConfig{
		OrdersTopic:           "orders",
		PaymentsTopic:         " ",
		InventoryTopic:        "inventory",
		AnalyticsSubscription: "analytics",
	}
	require.Equal(t, []string{"orders", "inventory"}, topicNames(cfg))
	require.Equal(t, []string{"analytics"}, subscriptionNames(cfg))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("orders"))
	require.Nil(t, c.Subscription("analytics"))
	require.NoError(t, c.Close())
}
