package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pushdispatch/internal/config"
	"pushdispatch/internal/types"
)

const fcmSendURLFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// FCMClient sends messages through the FCM HTTP v1 API and classifies the
// responses. It never returns an error for a delivery the gateway rejected;
// rejections become failed GatewayResults so the caller can record them.
// Errors are reserved for requests that could not be built at all.
type FCMClient struct {
	base           *BaseClient
	logger         types.Logger
	sendURL        string
	androidChannel string
}

// NewFCMClient creates an FCMClient for the configured project.
func NewFCMClient(httpClient *http.Client, cfg config.FCMConfig, logger types.Logger) *FCMClient {
	sendURL := cfg.SendURL
	if sendURL == "" {
		sendURL = fmt.Sprintf(fcmSendURLFormat, cfg.ProjectID)
	}

	base := NewBaseClient(
		httpClient,
		"fcm-send",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PushDispatch/1.0",
	)

	return &FCMClient{
		base:           base,
		logger:         logger,
		sendURL:        sendURL,
		androidChannel: cfg.AndroidChannel,
	}
}

// fcmMessage is the HTTP v1 wire format for a single-token send.
type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string                 `json:"priority"`
	Notification fcmAndroidNotification `json:"notification"`
}

type fcmAndroidNotification struct {
	Sound     string `json:"sound"`
	ChannelID string `json:"channelId"`
}

type fcmAPNS struct {
	Payload fcmAPNSPayload `json:"payload"`
}

type fcmAPNSPayload struct {
	APS fcmAPS `json:"aps"`
}

type fcmAPS struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

// Send delivers one message to one device token and classifies the response.
func (c *FCMClient) Send(ctx context.Context, accessToken, deviceToken string, msg *types.PushMessage) (*types.GatewayResult, error) {
	body, err := json.Marshal(map[string]any{
		"message": c.buildMessage(deviceToken, msg),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		// Transport failure or retries exhausted. Surface as a failed result
		// so the attempt is recorded like any other rejection.
		return &types.GatewayResult{
			Error: err.Error(),
			Raw: types.JSONMap{
				"error": err.Error(),
				"token": types.TruncateToken(deviceToken),
			},
		}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeGatewayUnreachable, "failed to read gateway response", err)
	}

	return c.classify(resp.StatusCode, respBody, deviceToken), nil
}

// buildMessage assembles the v1 message for one device token.
func (c *FCMClient) buildMessage(deviceToken string, msg *types.PushMessage) fcmMessage {
	priority := "normal"
	if msg.Priority == types.PriorityHigh {
		priority = "high"
	}

	actionData := msg.ActionData
	if actionData == nil {
		actionData = types.JSONMap{}
	}
	actionDataJSON, _ := json.Marshal(actionData)

	return fcmMessage{
		Token: deviceToken,
		Notification: fcmNotification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"notification_id":   msg.NotificationID,
			"notification_type": string(msg.Type),
			"action":            msg.Action,
			"job_id":            msg.JobID,
			"action_data":       string(actionDataJSON),
			"click_action":      "FLUTTER_NOTIFICATION_CLICK",
		},
		Android: fcmAndroid{
			Priority: priority,
			Notification: fcmAndroidNotification{
				Sound:     "default",
				ChannelID: c.androidChannel,
			},
		},
		APNS: fcmAPNS{
			Payload: fcmAPNSPayload{
				APS: fcmAPS{
					Sound: "default",
					Badge: 1,
				},
			},
		},
	}
}

// classify interprets a gateway response body. The gateway sometimes returns
// HTML error pages instead of JSON; those and undecodable bodies are treated
// as failed attempts with the raw payload preserved for diagnosis.
func (c *FCMClient) classify(status int, body []byte, deviceToken string) *types.GatewayResult {
	if strings.HasPrefix(strings.TrimSpace(string(body)), "<") {
		c.logger.Error("gateway returned HTML error page", "status", status, "token", types.TruncateToken(deviceToken))
		return &types.GatewayResult{
			Error: "FCM API returned HTML error page",
			Raw: types.JSONMap{
				"error":       "FCM API returned HTML error page",
				"status":      status,
				"rawResponse": truncateBody(body),
				"token":       types.TruncateToken(deviceToken),
			},
		}
	}

	var decoded types.JSONMap
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("failed to decode gateway response", "error", err)
		return &types.GatewayResult{
			Error: "Invalid JSON response from FCM",
			Raw: types.JSONMap{
				"error":       "Invalid JSON response from FCM",
				"rawResponse": string(body),
				"token":       types.TruncateToken(deviceToken),
			},
		}
	}

	if errVal, ok := decoded["error"]; ok && errVal != nil {
		message := gatewayErrorMessage(errVal)
		decoded["error"] = message
		return &types.GatewayResult{
			Error: message,
			Raw:   decoded,
		}
	}

	if name, ok := decoded["name"].(string); ok && name != "" {
		// Success responses carry the resource name; the trailing path
		// segment is the message ID.
		parts := strings.Split(name, "/")
		messageID := parts[len(parts)-1]
		decoded["success"] = 1
		decoded["message_id"] = messageID
		return &types.GatewayResult{
			Success:   true,
			MessageID: messageID,
			Raw:       decoded,
		}
	}

	// JSON without error or name: not a success, keep what came back.
	return &types.GatewayResult{
		Error: fmt.Sprintf("unexpected gateway response (%d)", status),
		Raw:   decoded,
	}
}

// gatewayErrorMessage extracts a printable message from the error field,
// which may be a structured object or a bare string.
func gatewayErrorMessage(errVal any) string {
	if m, ok := errVal.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%v", errVal)
}
