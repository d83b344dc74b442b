package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Service emails the back office when a conversation is handed to a
// human. It implements the dispatcher's escalation hook.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
	nowFunc    func() time.Time
}

// NewService creates a notification service. With no sender or no
// recipients configured, escalations are logged but not emailed.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		recipients: recipients,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

var _ action.Escalator = (*Service)(nil)

// Escalate notifies every configured recipient. The customer keeps
// getting their canned handoff reply even if email delivery fails, so
// failures here are logged and returned for the caller to decide.
func (s *Service) Escalate(ctx context.Context, e action.Escalation) error {
	s.logger.Info("escalation requested",
		"conversation_key", e.ConversationKey,
		"channel", e.Channel,
		"reason", e.Reason)

	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Warn("escalation email skipped: no sender or recipients configured",
			"conversation_key", e.ConversationKey)
		return nil
	}

	customer := e.CustomerName
	if customer == "" {
		customer = "未綁定客戶"
	}
	subject := fmt.Sprintf("[GasDesk] 人工客服請求 - %s", customer)
	body := s.renderBody(e, customer)

	var errs []error
	for _, to := range s.recipients {
		msg := EmailMessage{
			To:      to,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("escalation email failed", "to", to, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(s.recipients) {
		return fmt.Errorf("notify: all escalation emails failed: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Service) renderBody(e action.Escalation, customer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "客戶要求轉接人工客服。\n\n")
	fmt.Fprintf(&b, "客戶:%s\n", customer)
	fmt.Fprintf(&b, "頻道:%s\n", e.Channel)
	fmt.Fprintf(&b, "對話:%s\n", e.ConversationKey)
	if e.Reason != "" {
		fmt.Fprintf(&b, "最後訊息:%s\n", e.Reason)
	}
	fmt.Fprintf(&b, "時間:%s\n", s.nowFunc().Format("2006-01-02 15:04"))
	b.WriteString("\n請儘快透過後台接手這個對話。\n")
	return b.String()
}
