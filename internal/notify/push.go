package notify

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FirebasePusher sends notifications to the topic "user-<id>", which every
// device of the user subscribes to at login.
type FirebasePusher struct {
	client messageSender
}

func NewFirebasePusher(ctx context.Context, credentialsFile, projectID string) (*FirebasePusher, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}
	return &FirebasePusher{client: client}, nil
}

func (p *FirebasePusher) Push(ctx context.Context, n domain.Notification) error {
	msg := BuildPushMessage(n)
	logger.ExternalServiceCall("firebase", "Send", "topic", msg.Topic, "title", n.Title)
	id, err := p.client.Send(ctx, msg)
	logger.ExternalServiceResult("firebase", "Send", err, "message_id", id)
	if err != nil {
		return fmt.Errorf("failed to push notification to user %d: %w", n.UserID, err)
	}
	return nil
}

func UserTopic(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}

func BuildPushMessage(n domain.Notification) *messaging.Message {
	return &messaging.Message{
		Topic: UserTopic(n.UserID),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: n.Attributes,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "wallet_updates",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: n.Title,
						Body:  n.Message,
					},
					Sound: "default",
				},
			},
		},
	}
}
