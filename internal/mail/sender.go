package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/config"
	"github.com/mkerr/briefcast/internal/metrics"
)

// Simplified RFC 5322 address check. Blocks newlines and header metacharacters
// rather than attempting full grammar coverage.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Sender delivers generated bulletins as email attachments over SMTP.
// Credentials come from the environment, never from the config file.
type Sender struct {
	cfg      config.EmailConfig
	username string
	password string
	// DefaultRecipient is used when a request does not name one.
	DefaultRecipient string
	logger           *zap.Logger
}

func NewSender(cfg config.EmailConfig, logger *zap.Logger) *Sender {
	return &Sender{
		cfg:              cfg,
		username:         os.Getenv("SMTP_USERNAME"),
		password:         os.Getenv("SMTP_PASSWORD"),
		DefaultRecipient: os.Getenv("RECIPIENT_EMAIL"),
		logger:           logger.Named("mail"),
	}
}

// IsConfigured reports whether SMTP credentials are present.
func (s *Sender) IsConfigured() bool {
	return s.username != "" && s.password != ""
}

// SendBulletin emails the bulletin at bulletinPath to recipient, falling back
// to the configured default recipient when empty.
func (s *Sender) SendBulletin(ctx context.Context, bulletinPath, profileName, recipient string) error {
	if recipient == "" {
		recipient = s.DefaultRecipient
	}
	if recipient == "" {
		return fmt.Errorf("no recipient email provided")
	}
	if err := ValidateAddress(recipient); err != nil {
		return err
	}
	if !s.IsConfigured() {
		return fmt.Errorf("SMTP credentials not configured")
	}

	info, err := os.Stat(bulletinPath)
	if err != nil {
		return fmt.Errorf("bulletin file not found")
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > float64(s.cfg.MaxSizeMB) {
		return fmt.Errorf("bulletin file too large: %.1fMB (max %dMB)", sizeMB, s.cfg.MaxSizeMB)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.SenderName, s.username); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("News Bulletin - %s", profileName))
	msg.SetBodyString(gomail.TypeTextHTML, bodyHTML(profileName, filepath.Base(bulletinPath), sizeMB))
	msg.AttachFile(bulletinPath, gomail.WithFileName(filepath.Base(bulletinPath)))

	client, err := gomail.NewClient(s.cfg.SMTPServer,
		gomail.WithPort(s.cfg.SMTPPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	s.logger.Info("sending bulletin",
		zap.String("server", s.cfg.SMTPServer),
		zap.Int("port", s.cfg.SMTPPort),
		zap.String("file", filepath.Base(bulletinPath)),
	)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		metrics.EmailsSentTotal.WithLabelValues("error").Inc()
		// The wrapped error may carry server detail; the caller decides
		// what surfaces to the user.
		return fmt.Errorf("sending email: %w", err)
	}

	metrics.EmailsSentTotal.WithLabelValues("success").Inc()
	s.logger.Info("bulletin emailed", zap.String("file", filepath.Base(bulletinPath)))
	return nil
}

// ValidateAddress checks an email address before it reaches the SMTP layer.
func ValidateAddress(email string) error {
	if email == "" || len(email) > 254 {
		return fmt.Errorf("invalid email address")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email address format")
	}
	return nil
}

func bodyHTML(profileName, filename string, sizeMB float64) string {
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your News Bulletin is Ready</h2>
  <p>Your personalised news bulletin for <strong>%s</strong> has been generated.</p>
  <div style="background-color: #f7f7f7; padding: 16px; border-radius: 3px;">
    <p style="margin: 0;"><strong>File:</strong> %s</p>
    <p style="margin: 8px 0 0 0;"><strong>Size:</strong> %.1f MB</p>
  </div>
  <p>The bulletin is attached to this email.</p>
</body>
</html>`, profileName, filename, sizeMB)
}
