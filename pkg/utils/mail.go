package utils

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/AksharDP/modhub/pkg/logger"
	"gopkg.in/gomail.v2"
)

// EmailConfig holds SMTP and app settings, passed in from app config
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AppURL       string
	FromEmail    string
}

// Enabled reports whether an SMTP server is configured.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != ""
}

// Email is a rendered message ready for delivery.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

const emailLayout = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body { font-family: Arial, sans-serif; background-color: #f4f4f4; color: #333; }
        .container { max-width: 600px; margin: 40px auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; }
        .header { background-color: #2d7d46; padding: 20px; text-align: center; color: #ffffff; }
        .content { padding: 30px; line-height: 1.6; }
        .otp { font-size: 28px; font-weight: bold; color: #2d7d46; text-align: center; margin: 20px 0; }
        .footer { background-color: #f4f4f4; padding: 20px; text-align: center; font-size: 12px; color: #777; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>%s</h1></div>
        <div class="content">%s</div>
        <div class="footer"><p>&copy; %d ModHub</p></div>
    </div>
</body>
</html>
`

func renderHTML(title, content string) string {
	return fmt.Sprintf(emailLayout, html.EscapeString(title), html.EscapeString(title), content, time.Now().Year())
}

// ActivationEmail renders the account activation message.
func ActivationEmail(config EmailConfig, email, username, token string, otp int64) Email {
	activationLink := fmt.Sprintf("%s/activate?token=%s", config.AppURL, token)

	content := fmt.Sprintf(`
            <p>Hello %s,</p>
            <p>Thanks for joining ModHub. Activate your account with the code below or follow the link.</p>
            <div class="otp">%08d</div>
            <p style="text-align: center;"><a href="%s">Activate Your Account</a></p>
            <p>This code expires in 24 hours.</p>`,
		html.EscapeString(username), otp, html.EscapeString(activationLink))

	text := fmt.Sprintf(`Hello %s,

Welcome to ModHub! Your activation code is: %08d

Activate your account here: %s

This code expires in 24 hours. If you didn't sign up, ignore this email.
`, username, otp, activationLink)

	return Email{
		To:       email,
		Subject:  "Activate Your ModHub Account",
		TextBody: text,
		HTMLBody: renderHTML("Welcome to ModHub!", content),
	}
}

// ModReviewEmail renders the message sent to an author once a moderator decided on their mod.
func ModReviewEmail(config EmailConfig, email, username, modName, modID, status, reason string) Email {
	link := fmt.Sprintf("%s/mods/%s", config.AppURL, modID)
	subject := fmt.Sprintf("Your mod %q was %s", modName, status)

	content := fmt.Sprintf(`
            <p>Hello %s,</p>
            <p>Your mod <strong>%s</strong> was <strong>%s</strong> by a moderator.</p>`,
		html.EscapeString(username), html.EscapeString(modName), html.EscapeString(status))
	text := fmt.Sprintf("Hello %s,\n\nYour mod %q was %s by a moderator.\n", username, modName, status)
	if reason != "" {
		content += fmt.Sprintf(`
            <p>Reason: %s</p>`, html.EscapeString(reason))
		text += fmt.Sprintf("Reason: %s\n", reason)
	}
	content += fmt.Sprintf(`
            <p><a href="%s">View your mod</a></p>`, html.EscapeString(link))
	text += fmt.Sprintf("\nView your mod: %s\n", link)

	return Email{
		To:       email,
		Subject:  subject,
		TextBody: text,
		HTMLBody: renderHTML("Mod review", content),
	}
}

// SendEmail delivers msg over SMTP. Without a configured host the message is only logged.
func SendEmail(ctx context.Context, config EmailConfig, msg Email, log *logger.Logger) error {
	if !config.Enabled() {
		log.Debug(ctx).WithFields("email", msg.To, "subject", msg.Subject).Logs("SMTP disabled, email not sent")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", config.FromEmail)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	m.AddAlternative("text/html", msg.HTMLBody)

	dialer := gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUsername, config.SMTPPassword)
	if err := dialer.DialAndSend(m); err != nil {
		log.Warn(ctx).WithFields("email", msg.To, "error", err.Error()).Logs("Failed to send email")
		return WrapError(err, ErrInternalServerError.Code, "Failed to send email")
	}

	log.Info(ctx).WithFields("email", msg.To, "subject", msg.Subject).Logs("Email sent")
	return nil
}

// SendActivationEmail renders and sends the activation email.
func SendActivationEmail(ctx context.Context, config EmailConfig, email, username, token string, otp int64, log *logger.Logger) error {
	return SendEmail(ctx, config, ActivationEmail(config, email, username, token, otp), log)
}
