package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// EmailTemplate is the fixed template catalog spec §4.11 requires.
type EmailTemplate string

const (
	TemplateGameInvite        EmailTemplate = "game_invite"
	TemplateSettlementSummary EmailTemplate = "settlement_summary"
	TemplateGameReminder      EmailTemplate = "game_reminder"
	TemplateWeeklyDigest      EmailTemplate = "weekly_digest"
	TemplateCustom            EmailTemplate = "custom"
)

// EmailRecipient is one addressee of an email send.
type EmailRecipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// EmailRecord is one recipient's logged send, grounded on
// tools/email_sender.py's email_logs document.
type EmailRecord struct {
	EmailID         string         `json:"email_id" bson:"email_id"`
	DeliveryID      string         `json:"delivery_id" bson:"delivery_id"`
	Type            EmailTemplate  `json:"type" bson:"type"`
	RecipientUserID string         `json:"recipient_user_id" bson:"recipient_user_id"`
	RecipientEmail  string         `json:"recipient_email" bson:"recipient_email"`
	RecipientName   string         `json:"recipient_name" bson:"recipient_name"`
	Subject         string         `json:"subject" bson:"subject"`
	Body            string         `json:"body" bson:"body"`
	Status          string         `json:"status" bson:"status"`
	TemplateData    map[string]any `json:"template_data,omitempty" bson:"template_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
}

// EmailProvider sends one rendered email through a real transactional
// provider (SendGrid, SES, ...). LoggerEmailProvider is the staging-safe
// fallback, the same shape as every other *ActionExecutor/*Escalator in
// this codebase.
type EmailProvider interface {
	Send(ctx context.Context, to, toName, subject, body string) (messageID string, err error)
}

// LoggerEmailProvider records every send through the structured logger
// instead of dispatching to a real provider.
type LoggerEmailProvider struct {
	log *logger.Logger
}

// NewLoggerEmailProvider builds a LoggerEmailProvider that writes through log.
func NewLoggerEmailProvider(log *logger.Logger) *LoggerEmailProvider {
	return &LoggerEmailProvider{log: log}
}

// Send implements EmailProvider.
func (p *LoggerEmailProvider) Send(ctx context.Context, to, toName, subject, body string) (string, error) {
	p.log.WithField("to", to).WithField("subject", subject).Info("sending transactional email")
	return "logged_" + uuid.NewString(), nil
}

// EmailSender sends transactional emails from the fixed template catalog,
// grounded on tools/email_sender.py's EmailSenderTool.
type EmailSender struct {
	emailLogs storage.Store
	provider  EmailProvider
	now       func() time.Time
}

// NewEmailSender builds an EmailSender over the email_logs collection and a
// provider. A nil provider is replaced by a LoggerEmailProvider.
func NewEmailSender(emailLogs storage.Store, provider EmailProvider, log *logger.Logger) *EmailSender {
	if provider == nil {
		provider = NewLoggerEmailProvider(log)
	}
	return &EmailSender{emailLogs: emailLogs, provider: provider, now: time.Now}
}

func (s *EmailSender) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Send renders subject/body for templateType (subject/body are only used
// when templateType is TemplateCustom) and dispatches one email per
// recipient, idempotent on deliveryID.
func (s *EmailSender) Send(ctx context.Context, deliveryID string, templateType EmailTemplate, recipients []EmailRecipient, subject, body string, templateData map[string]any) (NotificationResult, error) {
	if deliveryID == "" {
		return NotificationResult{}, fmt.Errorf("email send: delivery_id is required")
	}
	if len(recipients) == 0 {
		return NotificationResult{}, fmt.Errorf("email send: no recipients provided")
	}

	var existing []EmailRecord
	if err := s.emailLogs.Find(ctx, storage.Filter{"delivery_id": deliveryID}, nil, 0, &existing); err != nil {
		return NotificationResult{}, fmt.Errorf("check existing email log: %w", err)
	}
	if len(existing) > 0 {
		results := make([]RecipientResult, len(existing))
		for i, rec := range existing {
			results[i] = RecipientResult{UserID: rec.RecipientUserID, Status: "duplicate"}
		}
		return NotificationResult{SentCount: len(existing), Results: results}, nil
	}

	now := s.clock()
	result := NotificationResult{Results: make([]RecipientResult, 0, len(recipients))}
	for _, recipient := range recipients {
		renderedSubject, renderedBody := renderEmailTemplate(templateType, subject, body, recipient.Name, templateData)
		rec := EmailRecord{
			EmailID:         "eml_" + uuid.NewString(),
			DeliveryID:      deliveryID,
			Type:            templateType,
			RecipientUserID: recipient.UserID,
			RecipientEmail:  recipient.Email,
			RecipientName:   recipient.Name,
			Subject:         renderedSubject,
			Body:            renderedBody,
			Status:          "pending",
			TemplateData:    templateData,
			CreatedAt:       now,
		}

		if _, err := s.provider.Send(ctx, recipient.Email, recipient.Name, renderedSubject, renderedBody); err != nil {
			rec.Status = "failed"
			_ = s.emailLogs.InsertOne(ctx, rec.EmailID, rec)
			result.FailedCount++
			result.Results = append(result.Results, RecipientResult{UserID: recipient.UserID, Status: "failed", Error: err.Error()})
			continue
		}

		rec.Status = "sent"
		if err := s.emailLogs.InsertOne(ctx, rec.EmailID, rec); err != nil {
			result.FailedCount++
			result.Results = append(result.Results, RecipientResult{UserID: recipient.UserID, Status: "failed", Error: err.Error()})
			continue
		}
		result.SentCount++
		result.Results = append(result.Results, RecipientResult{UserID: recipient.UserID, Status: "sent"})
	}
	return result, nil
}

// renderEmailTemplate ports _generate_email_content's per-template copy
// verbatim in structure, keyed the same way.
func renderEmailTemplate(templateType EmailTemplate, subject, body, recipientName string, data map[string]any) (string, string) {
	get := func(key, fallback string) string {
		if data == nil {
			return fallback
		}
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
		return fallback
	}
	name := recipientName
	if name == "" {
		name = get("recipient_name", "there")
	}

	switch templateType {
	case TemplateGameInvite:
		gameTitle := get("game_title", "Poker Night")
		return fmt.Sprintf("You're invited to %s!", gameTitle),
			fmt.Sprintf("Hey %s!\n\nYou've been invited to join a poker game:\n\nGame: %s\nWhen: %s\nBuy-in: $%s\nHost: %s\n\nRSVP: %s\n\nSee you at the table!",
				name, gameTitle, get("scheduled_time", "TBD"), get("buy_in_amount", "20"), get("host_name", "Unknown"), get("rsvp_link", "#"))
	case TemplateSettlementSummary:
		gameTitle := get("game_title", "Poker Night")
		return fmt.Sprintf("Game Settlement: %s", gameTitle),
			fmt.Sprintf("Game Summary: %s\n\nYour Results:\n- Buy-in: $%s\n- Cash-out: $%s\n- Net Result: $%s\n\n%s\n\nThanks for playing!",
				gameTitle, get("total_buy_in", "0"), get("cash_out", "0"), get("net_result", "0"), get("settlement_instructions", ""))
	case TemplateGameReminder:
		gameTitle := get("game_title", "Poker Night")
		return fmt.Sprintf("Reminder: %s starts soon!", gameTitle),
			fmt.Sprintf("Hey %s!\n\nJust a reminder that the game is starting soon:\n\nGame: %s\nWhen: %s\nLocation: %s\n\nSee you there!",
				name, gameTitle, get("scheduled_time", "Soon"), get("location", "Check the app"))
	case TemplateWeeklyDigest:
		return "Your Weekly Poker Summary",
			fmt.Sprintf("Hey %s!\n\nHere's your weekly poker summary:\n\nGames Played: %s\nTotal Profit/Loss: $%s\nWin Rate: %s%%\n\n%s\n\nKeep up the good game!",
				name, get("games_played", "0"), get("total_profit", "0"), get("win_rate", "0"), get("highlights", ""))
	default:
		if subject == "" {
			subject = "Message from Oddside"
		}
		if body == "" {
			body = "No content provided"
		}
		return subject, body
	}
}
