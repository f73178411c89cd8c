package utils

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"google.golang.org/api/option"
)

// PushProvider wraps FCM for push and Twilio for the urgent-SMS channel.
type PushProvider struct {
	fcmClient    *messaging.Client
	twilioClient *twilio.RestClient
	twilioNumber string
}

type PushNotification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    int               `json:"badge,omitempty"`
}

type SMSMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type NotificationResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewPushProvider(firebaseCredentials, twilioSID, twilioToken, twilioNumber string) (*PushProvider, error) {
	// Initialize Firebase
	opt := option.WithCredentialsFile(firebaseCredentials)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %v", err)
	}

	fcmClient, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %v", err)
	}

	// Initialize Twilio
	twilioClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: twilioSID,
		Password: twilioToken,
	})

	return &PushProvider{
		fcmClient:    fcmClient,
		twilioClient: twilioClient,
		twilioNumber: twilioNumber,
	}, nil
}

// SendPushNotification delivers one push message to a device token.
func (pp *PushProvider) SendPushNotification(ctx context.Context, deviceToken string, notification PushNotification) (*NotificationResult, error) {
	message := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Sound: notification.Sound,
				Icon:  "ic_notification",
				Color: "#4F46E5",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: notification.Title,
						Body:  notification.Body,
					},
					Badge: &notification.Badge,
					Sound: notification.Sound,
				},
			},
		},
	}

	response, err := pp.fcmClient.Send(ctx, message)
	if err != nil {
		return &NotificationResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &NotificationResult{
		Success:   true,
		MessageID: response,
	}, nil
}

func (pp *PushProvider) SendPushToMultipleDevices(ctx context.Context, deviceTokens []string, notification PushNotification) ([]*NotificationResult, error) {
	message := &messaging.MulticastMessage{
		Tokens: deviceTokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	}

	response, err := pp.fcmClient.SendMulticast(ctx, message)
	if err != nil {
		return nil, err
	}

	results := make([]*NotificationResult, len(deviceTokens))
	for i, resp := range response.Responses {
		if resp.Success {
			results[i] = &NotificationResult{
				Success:   true,
				MessageID: resp.MessageID,
			}
		} else {
			results[i] = &NotificationResult{
				Success: false,
				Error:   resp.Error.Error(),
			}
		}
	}

	return results, nil
}

// SendSMS delivers an SMS through Twilio. Reserved for urgent notifications.
func (pp *PushProvider) SendSMS(ctx context.Context, sms SMSMessage) (*NotificationResult, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(sms.To)
	params.SetFrom(pp.twilioNumber)
	params.SetBody(sms.Message)

	resp, err := pp.twilioClient.Api.CreateMessage(params)
	if err != nil {
		return &NotificationResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &NotificationResult{
		Success:   true,
		MessageID: *resp.Sid,
	}, nil
}

// Notification Templates

func CreateAssignmentNotification(courseName, assignmentTitle string, hoursLeft int) PushNotification {
	var title, body string

	switch {
	case hoursLeft <= 1:
		title = "Assignment due soon"
		body = fmt.Sprintf("%s: %s is due within the hour", courseName, assignmentTitle)
	case hoursLeft <= 24:
		title = "Assignment due today"
		body = fmt.Sprintf("%s: %s is due in %d hours", courseName, assignmentTitle, hoursLeft)
	default:
		title = "Upcoming assignment"
		body = fmt.Sprintf("%s: %s", courseName, assignmentTitle)
	}

	return PushNotification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":       "assignment",
			"courseName": courseName,
			"assignment": assignmentTitle,
		},
		Sound: "default",
	}
}

func CreateReviewNotification(dueCards int) PushNotification {
	return PushNotification{
		Title: "Time to review",
		Body:  fmt.Sprintf("%d cards are waiting for you", dueCards),
		Data: map[string]string{
			"type":     "srs",
			"dueCards": fmt.Sprintf("%d", dueCards),
		},
		Sound: "default",
		Badge: dueCards,
	}
}

func CreateLectureNotification(courseName, room string, minutesUntil int) PushNotification {
	return PushNotification{
		Title: fmt.Sprintf("%s starts in %d min", courseName, minutesUntil),
		Body:  fmt.Sprintf("Room %s", room),
		Data: map[string]string{
			"type":       "lecture",
			"courseName": courseName,
			"room":       room,
		},
		Sound: "default",
	}
}

func CreateWeeklySummaryNotification(studyHours float64, productivityScore float64) PushNotification {
	return PushNotification{
		Title: "Your week in review",
		Body:  fmt.Sprintf("You studied %.1f hours this week. Productivity score: %.0f", studyHours, productivityScore),
		Data: map[string]string{
			"type": "update",
		},
		Sound: "default",
	}
}
