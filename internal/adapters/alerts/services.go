package alerts

import (
	"context"
	"fmt"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/mail"

	"github.com/okian/herdwatch/pkg/logger"
)

// LogService is a notify service that writes alerts to the log. It is always
// installed so alerts stay visible when no other transport is configured.
type LogService struct {
	logger logger.Logger
}

// NewLogService returns a log-backed notify service.
func NewLogService(l logger.Logger) *LogService {
	return &LogService{logger: l}
}

// Send implements notify.Notifier.
func (s *LogService) Send(ctx context.Context, subject, message string) error {
	fields := []logger.Field{
		logger.String("subject", subject),
		logger.String("message", message),
	}
	if a, ok := AlertFromContext(ctx); ok {
		fields = append(fields,
			logger.String("alert_id", a.ID),
			logger.String("entity_id", a.Event.EntityID),
		)
	}
	s.logger.Warn(ctx, "geofence alert", fields...)
	return nil
}

// MailSettings configures SMTP delivery.
type MailSettings struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	Recipients []string
}

// NewMailService builds an SMTP notify service. Receivers are added once here;
// the service is reused for every alert.
func NewMailService(s MailSettings) *mail.Mail {
	from := s.From
	if from == "" {
		from = s.User
	}
	svc := mail.New(from, fmt.Sprintf("%s:%d", s.Host, s.Port))
	if s.User != "" {
		svc.AuthenticateSMTP("", s.User, s.Password, s.Host)
	}
	svc.AddReceivers(s.Recipients...)
	return svc
}

// NewNotifier composes services into one notifier.
func NewNotifier(services ...notify.Notifier) *notify.Notify {
	n := notify.New()
	n.UseServices(services...)
	return n
}
