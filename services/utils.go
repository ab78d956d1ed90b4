package services

import (
	"context"
	"fmt"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Notifier delivers a short message to every device a user registered.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string, customData map[string]string) error
}

// NopNotifier is used when push delivery is disabled.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string, map[string]string) error {
	return nil
}

type PushToken struct {
	Token    string
	Platform string
}

// PushTokenStore keeps the device tokens registered through the gateway.
type PushTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]map[string]string
}

func NewPushTokenStore() *PushTokenStore {
	return &PushTokenStore{tokens: make(map[string]map[string]string)}
}

func (s *PushTokenStore) Register(userID, token, platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens[userID] == nil {
		s.tokens[userID] = make(map[string]string)
	}
	s.tokens[userID][token] = platform
}

func (s *PushTokenStore) Remove(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens[userID], token)
	if len(s.tokens[userID]) == 0 {
		delete(s.tokens, userID)
	}
}

func (s *PushTokenStore) Tokens(userID string) []PushToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PushToken, 0, len(s.tokens[userID]))
	for token, platform := range s.tokens[userID] {
		out = append(out, PushToken{Token: token, Platform: platform})
	}
	return out
}

// MessagingClient is satisfied by *messaging.Client.
type MessagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

type FirebaseNotifier struct {
	Client MessagingClient
	Tokens *PushTokenStore
	Logger zerolog.Logger
}

func NewFirebaseNotifier(ctx context.Context, tokens *PushTokenStore, logger zerolog.Logger) (*FirebaseNotifier, error) {
	fbApp, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing messaging client: %w", err)
	}
	return &FirebaseNotifier{Client: client, Tokens: tokens, Logger: logger}, nil
}

func stringMapToInterfaceMap(stringMap map[string]string) map[string]interface{} {
	interfaceMap := make(map[string]interface{})
	for key, value := range stringMap {
		interfaceMap[key] = value
	}
	return interfaceMap
}

func buildPushMessage(token PushToken, title, message string, customData map[string]string) *messaging.Message {
	var iosCustomData map[string]interface{}
	if customData != nil {
		iosCustomData = stringMapToInterfaceMap(customData)
	}
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
		APNS: &messaging.APNSConfig{
			FCMOptions: &messaging.APNSFCMOptions{
				AnalyticsLabel: "tryon",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  message,
					},
					Sound: "default",
				},
				CustomData: iosCustomData,
			},
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Priority:  messaging.AndroidNotificationPriority(messaging.PriorityMax),
				ChannelID: "tryon-results",
			},
			Data: customData,
		},
		Token: token.Token,
	}
}

// Notify sends to all of the user's tokens and forgets tokens that FCM
// reports as unregistered.
func (n *FirebaseNotifier) Notify(ctx context.Context, userID, title, message string, customData map[string]string) error {
	tokens := n.Tokens.Tokens(userID)
	if len(tokens) == 0 {
		return nil
	}
	messages := make([]*messaging.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, buildPushMessage(token, title, message, customData))
	}

	br, err := n.Client.SendEach(ctx, messages)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("push to user %s failed: %w", userID, err))
		return fmt.Errorf("sending push: %w", err)
	}
	for i, resp := range br.Responses {
		if resp == nil || resp.Success {
			continue
		}
		if messaging.IsUnregistered(resp.Error) {
			n.Tokens.Remove(userID, tokens[i].Token)
			continue
		}
		n.Logger.Warn().Err(resp.Error).Str("user_id", userID).Msg("push failed")
	}
	n.Logger.Debug().Str("user_id", userID).Int("sent", br.SuccessCount).Int("failed", br.FailureCount).Msg("notifications sent")
	return nil
}
