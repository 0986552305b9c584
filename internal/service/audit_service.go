package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/events"
)

// AuditService writes an audit trail for auth events.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.logInfo)
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.logInfo)
	a.dispatcher.Subscribe(events.EventPasswordChanged, a.logInfo)
	a.dispatcher.Subscribe(events.EventUserDeleted, a.logInfo)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.logInfo)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.logWarn)
	a.dispatcher.Subscribe(events.EventAccessDenied, a.logWarn)
}

func (a *AuditService) logInfo(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type), eventFields(event)...)
	return nil
}

func (a *AuditService) logWarn(_ context.Context, event events.Event) error {
	a.logger.Warn(string(event.Type), eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("subject", event.Subject),
		zap.Time("at", event.Timestamp),
		zap.Any("payload", event.Payload),
	}
}
