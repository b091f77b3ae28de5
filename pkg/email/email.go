package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"livementor_backend/pkg/logger"
)

const resendURL = "https://api.resend.com/emails"

type EmailService struct {
	apiKey    string
	from      string
	endpoint  string
	client    *http.Client
	templates *template.Template
	log       *zap.Logger
}

type EmailData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

// Template data structures
type WelcomeEmailData struct {
	Name string
}

type EnrollmentConfirmedData struct {
	StudentName  string
	CourseTitle  string
	Amount       string
	EnrollmentID string
	EnrolledAt   time.Time
}

type SubscriptionStartedData struct {
	StudentName  string
	CourseTitle  string
	Schedule     string
	MonthlyTotal string
	TrialEnd     *time.Time
}

type SubscriptionCancelledData struct {
	StudentName string
	CourseTitle string
	AtPeriodEnd bool
	EndsAt      time.Time
}

type PaymentFailedData struct {
	StudentName string
	CourseTitle string
	AmountDue   string
	InvoiceURL  string
}

type TrialEndingData struct {
	StudentName  string
	CourseTitle  string
	TrialEnd     time.Time
	MonthlyTotal string
}

type Option func(*EmailService)

// WithEndpoint points the service at another Resend-compatible endpoint.
func WithEndpoint(url string, client *http.Client) Option {
	return func(s *EmailService) {
		s.endpoint = url
		if client != nil {
			s.client = client
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *EmailService) { s.log = logger.OrNop(log) }
}

func NewEmailService(apiKey, from string, opts ...Option) (*EmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	s := &EmailService{
		apiKey:    apiKey,
		from:      from,
		endpoint:  resendURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		templates: templates,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *EmailService) sendTemplateEmail(ctx context.Context, to, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	jsonData, err := json.Marshal(EmailData{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error: status %d: %s", resp.StatusCode, string(respBody))
	}

	s.log.Debug("email sent", zap.String("template", templateName), zap.Int("status", resp.StatusCode))
	return nil
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return s.sendTemplateEmail(ctx, to, "Welcome to LiveMentor!", "welcome.html", WelcomeEmailData{Name: name})
}

func (s *EmailService) SendEnrollmentConfirmedEmail(ctx context.Context, to string, data EnrollmentConfirmedData) error {
	subject := fmt.Sprintf("You're enrolled in %s", data.CourseTitle)
	return s.sendTemplateEmail(ctx, to, subject, "enrollment_confirmed.html", data)
}

func (s *EmailService) SendSubscriptionStartedEmail(ctx context.Context, to string, data SubscriptionStartedData) error {
	subject := fmt.Sprintf("Your %s mentoring plan is set up", data.CourseTitle)
	return s.sendTemplateEmail(ctx, to, subject, "subscription_started.html", data)
}

func (s *EmailService) SendSubscriptionCancelledEmail(ctx context.Context, to string, data SubscriptionCancelledData) error {
	return s.sendTemplateEmail(ctx, to, "Your subscription has been cancelled", "subscription_cancelled.html", data)
}

func (s *EmailService) SendPaymentFailedEmail(ctx context.Context, to string, data PaymentFailedData) error {
	return s.sendTemplateEmail(ctx, to, "We couldn't process your payment", "payment_failed.html", data)
}

func (s *EmailService) SendTrialEndingEmail(ctx context.Context, to string, data TrialEndingData) error {
	subject := "Your free trial ends tomorrow"
	if days := int(time.Until(data.TrialEnd).Hours()/24 + 0.5); days > 1 {
		subject = fmt.Sprintf("Your free trial ends in %d days", days)
	}
	return s.sendTemplateEmail(ctx, to, subject, "trial_ending.html", data)
}
