package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"pushdispatch/internal/config"
	"pushdispatch/internal/dispatch"
)

type mockSQSSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerRun_SendsRunInput(t *testing.T) {
	sender := &mockSQSSender{}
	trigger := NewRunTrigger(sender, config.AWSConfig{
		TriggerQueueURL: "https://sqs.us-east-1.amazonaws.com/123/dispatch-trigger",
	}, discardLogger())

	input := dispatch.RunInput{NotificationID: "n-1", Limit: 25, DryRun: true}
	if err := trigger.TriggerRun(context.Background(), input, "manual"); err != nil {
		t.Fatalf("TriggerRun returned unexpected error: %v", err)
	}

	if len(sender.inputs) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(sender.inputs))
	}
	msg := sender.inputs[0]
	if *msg.QueueUrl != "https://sqs.us-east-1.amazonaws.com/123/dispatch-trigger" {
		t.Errorf("unexpected queue URL: %s", *msg.QueueUrl)
	}

	var decoded dispatch.RunInput
	if err := json.Unmarshal([]byte(*msg.MessageBody), &decoded); err != nil {
		t.Fatalf("message body is not valid run input JSON: %v", err)
	}
	if decoded != input {
		t.Errorf("round-tripped input = %+v, want %+v", decoded, input)
	}

	attr, ok := msg.MessageAttributes["reason"]
	if !ok {
		t.Fatal("missing reason attribute")
	}
	if *attr.DataType != "String" || *attr.StringValue != "manual" {
		t.Errorf("unexpected reason attribute: %+v", attr)
	}
}

func TestTriggerRun_SendFailure(t *testing.T) {
	sender := &mockSQSSender{err: errors.New("queue does not exist")}
	trigger := NewRunTrigger(sender, config.AWSConfig{TriggerQueueURL: "https://queue"}, discardLogger())

	err := trigger.TriggerRun(context.Background(), dispatch.RunInput{}, "schedule")
	if err == nil {
		t.Fatal("expected an error when SendMessage fails")
	}
}

func TestEnabled(t *testing.T) {
	withQueue := NewRunTrigger(&mockSQSSender{}, config.AWSConfig{TriggerQueueURL: "https://queue"}, discardLogger())
	if !withQueue.Enabled() {
		t.Error("trigger with a queue URL must be enabled")
	}

	withoutQueue := NewRunTrigger(&mockSQSSender{}, config.AWSConfig{}, discardLogger())
	if withoutQueue.Enabled() {
		t.Error("trigger without a queue URL must be disabled")
	}
}
