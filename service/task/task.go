// Package task dispatches asynchronous mint requests over Cloud Pub/Sub.
package task

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/service/logger"
	"google.golang.org/api/option"
)

func init() {
	env.RegisterValidation("GOOGLE_PROJECT_ID", "required")
	env.RegisterValidation("PUBSUB_TOPIC_MINT_REQUESTS", "required")
}

// MintMessage is the payload of an asynchronous mint request. Tries counts
// delivery attempts so the worker can give up after MINT_MAX_TRIES.
type MintMessage struct {
	AssetID uuid.UUID `json:"asset_id" binding:"required"`
	UserID  string    `json:"user_id" binding:"required"`
	Price   *uint64   `json:"price,omitempty"`
	Tries   int       `json:"tries"`
}

// Client publishes and consumes mint requests.
type Client struct {
	pub      *pubsub.Client
	sendFunc func(ctx context.Context, message MintMessage) error
}

// NewClient returns a new task client publishing to the configured mint topic.
func NewClient(ctx context.Context, pub *pubsub.Client) *Client {
	topic := pub.Topic(env.GetString("PUBSUB_TOPIC_MINT_REQUESTS"))
	return &Client{pub: pub, sendFunc: usePubSub(ctx, topic)}
}

// NewPubSubClient returns a pubsub client for the configured project. The
// client honors PUBSUB_EMULATOR_HOST for local runs.
func NewPubSubClient(ctx context.Context) *pubsub.Client {
	copts := []option.ClientOption{}
	if key := env.GetString("GCLOUD_SERVICE_KEY_OVERRIDE"); key != "" {
		copts = append(copts, option.WithCredentialsFile(key))
	}
	client, err := pubsub.NewClient(ctx, env.GetString("GOOGLE_PROJECT_ID"), copts...)
	if err != nil {
		panic(err)
	}
	return client
}

func usePubSub(ctx context.Context, topic *pubsub.Topic) func(ctx context.Context, message MintMessage) error {
	logger.For(ctx).Infof("Initializing task client publishing to topic: %s", topic.ID())
	return func(ctx context.Context, message MintMessage) error {
		body, err := json.Marshal(message)
		if err != nil {
			return err
		}
		res := topic.Publish(ctx, &pubsub.Message{Data: body})
		_, err = res.Get(ctx)
		return err
	}
}

// CreateTaskForMint enqueues a mint request for the asynchronous worker.
func (c *Client) CreateTaskForMint(ctx context.Context, message MintMessage) error {
	logger.For(ctx).WithFields(map[string]interface{}{
		"asset_id": message.AssetID,
		"user_id":  message.UserID,
		"tries":    message.Tries,
	}).Info("enqueuing mint request")
	return c.sendFunc(ctx, message)
}

// RetryMint re-enqueues a failed mint request with its attempt counter bumped.
func (c *Client) RetryMint(ctx context.Context, message MintMessage) error {
	message.Tries++
	return c.CreateTaskForMint(ctx, message)
}

// ReceiveMints blocks consuming the mint subscription until ctx is canceled,
// invoking handler once per message. Messages are always acked: redelivery is
// handled at the application level through RetryMint, so a poison message
// cannot wedge the subscription.
func (c *Client) ReceiveMints(ctx context.Context, handler func(ctx context.Context, message MintMessage) error) error {
	sub := c.pub.Subscription(env.GetString("PUBSUB_SUB_MINT_REQUESTS"))
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		defer msg.Ack()
		var message MintMessage
		if err := json.Unmarshal(msg.Data, &message); err != nil {
			logger.For(ctx).WithError(err).Error("dropping undecodable mint request")
			return
		}
		if err := handler(ctx, message); err != nil {
			logger.For(ctx).WithError(err).WithFields(map[string]interface{}{
				"asset_id": message.AssetID,
				"tries":    message.Tries,
			}).Error("mint request handler failed")
		}
	})
}
