package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "ops@luckygas.tw",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "ops@luckygas.tw",
		FromName:  "",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "GasDesk" {
		t.Errorf("expected default from name 'GasDesk', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{client: nil}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "ops@luckygas.tw",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error from unconfigured sender")
	}
}

func TestNewSESSender_NilWithoutClient(t *testing.T) {
	if sender := NewSESSender(nil, SESConfig{FromEmail: "ops@luckygas.tw"}, nil); sender != nil {
		t.Error("expected nil sender when client is nil")
	}
}

type fakeSES struct {
	sent []*sesv2.SendEmailInput
	err  error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_SendBuildsContent(t *testing.T) {
	ses := &fakeSES{}
	sender := NewSESSender(ses, SESConfig{FromEmail: "ops@luckygas.tw"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "staff@luckygas.tw",
		Subject: "客服升級",
		Body:    "顧客要求真人協助",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(ses.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ses.sent))
	}
	in := ses.sent[0]
	if got := aws.ToString(in.FromEmailAddress); got != "GasDesk <ops@luckygas.tw>" {
		t.Errorf("from = %q", got)
	}
	if in.Destination.ToAddresses[0] != "staff@luckygas.tw" {
		t.Errorf("to = %q", in.Destination.ToAddresses[0])
	}
	if in.Content.Simple.Body.Text == nil || in.Content.Simple.Body.Html != nil {
		t.Error("expected text body only")
	}
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "ops@luckygas.tw"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "staff@luckygas.tw"}); err == nil {
		t.Error("expected error from failed send")
	}
}

func TestStubEmailSender_SendSucceeds(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "ops@luckygas.tw"}); err != nil {
		t.Errorf("stub send should not fail: %v", err)
	}
}
