package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"langclash/internal/models"
)

// mailer is the part of the SES client the alert service uses
type mailer interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// AlertConfig configures proctor alerts
type AlertConfig struct {
	AWSRegion    string
	FromEmail    string
	FromName     string
	ProctorEmail string
	Threshold    int
	Debug        bool
}

// AlertService mails the contest proctor when a finished round carries a
// high anti-cheat suspicion score
type AlertService struct {
	client    mailer
	fromEmail string
	fromName  string
	proctor   string
	threshold int
	enabled   bool
	debug     bool
}

// NewAlertService creates a new alert service backed by Amazon SES
func NewAlertService(cfg AlertConfig) (*AlertService, error) {
	if cfg.FromEmail == "" || cfg.ProctorEmail == "" {
		log.Println("Proctor alerts disabled: SES_FROM_EMAIL or PROCTOR_EMAIL not configured")
		return &AlertService{enabled: false, debug: cfg.Debug}, nil
	}

	if cfg.Debug {
		log.Printf("[DEBUG] Initializing alert service with AWS SES")
		log.Printf("[DEBUG] AWS Region: %s", cfg.AWSRegion)
		log.Printf("[DEBUG] From Email: %s", cfg.FromEmail)
		log.Printf("[DEBUG] Proctor Email: %s", cfg.ProctorEmail)
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Proctor alerts enabled: from=%s, region=%s, threshold=%d", cfg.FromEmail, cfg.AWSRegion, cfg.Threshold)
	return newAlertService(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newAlertService(client mailer, cfg AlertConfig) *AlertService {
	return &AlertService{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		proctor:   cfg.ProctorEmail,
		threshold: cfg.Threshold,
		enabled:   true,
		debug:     cfg.Debug,
	}
}

// IsEnabled returns whether alerts are sent
func (s *AlertService) IsEnabled() bool {
	return s.enabled
}

// ShouldAlert reports whether a payload warrants a proctor alert. Started
// payloads never do.
func (s *AlertService) ShouldAlert(p *models.TelemetryPayload) bool {
	if !s.enabled || p == nil || p.RoundStatus == models.RoundStatusStarted {
		return false
	}
	return s.threshold > 0 && p.AntiCheat.SuspicionScore >= s.threshold
}

// NotifySuspicious sends an alert for the payload if it crosses the threshold
func (s *AlertService) NotifySuspicious(ctx context.Context, p *models.TelemetryPayload) error {
	if !s.ShouldAlert(p) {
		if s.debug && p != nil {
			log.Printf("[DEBUG] No alert for session %s round %d: suspicion=%d", p.SessionID, p.RoundNumber, p.AntiCheat.SuspicionScore)
		}
		return nil
	}

	subject := fmt.Sprintf("LangClash: suspicious play in %s (score %d)", p.ContestID, p.AntiCheat.SuspicionScore)
	textBody := alertText(p)
	htmlBody := "<!DOCTYPE html>\n<html><body><pre>" + html.EscapeString(textBody) + "</pre></body></html>\n"

	return s.sendEmail(ctx, subject, htmlBody, textBody)
}

func alertText(p *models.TelemetryPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contest:   %s\n", p.ContestID)
	fmt.Fprintf(&b, "User:      %s\n", p.UserID)
	fmt.Fprintf(&b, "Session:   %s\n", p.SessionID)
	fmt.Fprintf(&b, "Segment:   level %d, round %d, %s (%s)\n", p.LevelSeq, p.RoundNumber, p.Language, p.RoundStatus)
	fmt.Fprintf(&b, "Suspicion: %d\n", p.AntiCheat.SuspicionScore)
	fmt.Fprintf(&b, "Copy/paste attempts: %d\n", p.AntiCheat.CopyPasteAttempts)
	fmt.Fprintf(&b, "Tab switches: %d\n", p.Behavioral.TabSwitchCount)
	fmt.Fprintf(&b, "Rapid guess patterns: %d\n", len(p.AntiCheat.RapidGuessPatterns))
	for _, pattern := range p.AntiCheat.RapidGuessPatterns {
		fmt.Fprintf(&b, "  - %s avg %.2fs at %s\n", strings.Join(pattern.ItemIDs, ","), pattern.AverageTimeSeconds, pattern.StartTimestamp)
	}
	b.WriteString("\n---\nThis is an automated email from LangClash. Please do not reply.\n")
	return b.String()
}

// sendEmail sends an email to the proctor using Amazon SES
func (s *AlertService) sendEmail(ctx context.Context, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.proctor},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if s.debug {
		log.Printf("[DEBUG] Calling SES SendEmail API: to=%s, subject=%s", s.proctor, subject)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert to %s: %w", s.proctor, err)
	}

	if s.debug && result.MessageId != nil {
		log.Printf("[DEBUG] Message ID: %s", *result.MessageId)
	}
	log.Printf("Proctor alert sent: to=%s, subject=%s", s.proctor, subject)
	return nil
}
