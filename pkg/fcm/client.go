package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Client wraps Firebase Cloud Messaging
type Client struct {
	messaging *messaging.Client
	logger    *slog.Logger
}

// NewClient creates an FCM client. An empty credentialsFile falls back to
// application default credentials.
func NewClient(ctx context.Context, credentialsFile string, logger *slog.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	mc, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	logger.Info("FCM client initialized")
	return &Client{messaging: mc, logger: logger.With("component", "fcm")}, nil
}

// Notification is the payload of one push.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendToDevices pushes n to every token and returns the tokens that
// failed, so callers can prune them.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, n Notification) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  "/icon-192.svg",
			},
		},
	}

	resp, err := c.messaging.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}
	c.logger.Debug("Multicast sent", "success", resp.SuccessCount, "failure", resp.FailureCount)

	var failed []string
	for i, r := range resp.Responses {
		if !r.Success {
			failed = append(failed, tokens[i])
			if messaging.IsUnregistered(r.Error) {
				c.logger.Info("Device token unregistered", "error", r.Error)
			}
		}
	}
	return failed, nil
}
