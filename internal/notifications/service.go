// Package notifications persists per-user notices and pushes them over
// redis and email. Persistence is the only step whose failure is reported.
package notifications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/mailer"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
)

// Notice is one message addressed to one user.
type Notice struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Message string
	OrderID *uuid.UUID
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// Publisher pushes real-time payloads to connected clients.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Mailer sends a rendered email.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// ContactDirectory resolves a user's email address.
type ContactDirectory interface {
	Contact(ctx context.Context, userID uuid.UUID) (email, name string, err error)
}

// Service defines notification delivery and list/read operations.
type Service interface {
	Notifier
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo      Repository
	publisher Publisher
	mailer    Mailer
	contacts  ContactDirectory
	logg      *logger.Logger
	now       func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// Deps groups the notification service collaborators. Publisher, Mailer
// and Contacts are optional; a missing sink is skipped.
type Deps struct {
	Repo      Repository
	Publisher Publisher
	Mailer    Mailer
	Contacts  ContactDirectory
	Logger    *logger.Logger
}

// NewService wires notifications dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		mailer:    deps.Mailer,
		contacts:  deps.Contacts,
		logg:      logg,
		now:       time.Now,
	}, nil
}

type pushPayload struct {
	ID             uuid.UUID              `json:"id"`
	Type           enums.NotificationType `json:"type"`
	Message        string                 `json:"message"`
	RelatedOrderID *uuid.UUID             `json:"related_order_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Notify persists the notice, then pushes it and emails it best-effort.
func (s *service) Notify(ctx context.Context, notice Notice) error {
	if notice.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
	}
	if !notice.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown notification type %q", notice.Type)
	}
	message := strings.TrimSpace(notice.Message)
	if message == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification message required")
	}

	row := &models.Notification{
		UserID:    notice.UserID,
		OrderID:   notice.OrderID,
		Type:      notice.Type,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist notification")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           notice.UserID.String(),
		"notification_type": string(notice.Type),
	})
	s.push(logCtx, row)
	s.email(logCtx, row)
	return nil
}

func (s *service) push(ctx context.Context, row *models.Notification) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(pushPayload{
		ID:             row.ID,
		Type:           row.Type,
		Message:        row.Message,
		RelatedOrderID: row.OrderID,
		CreatedAt:      row.CreatedAt,
	})
	if err != nil {
		s.logg.Error(ctx, "encode notification push", err)
		return
	}
	if _, err := s.publisher.Publish(ctx, redis.UserChannel(row.UserID.String()), payload); err != nil {
		s.logg.Error(ctx, "notification push failed", err)
	}
}

func (s *service) email(ctx context.Context, row *models.Notification) {
	if s.mailer == nil || s.contacts == nil {
		return
	}
	address, name, err := s.contacts.Contact(ctx, row.UserID)
	if err != nil {
		s.logg.Error(ctx, "notification email recipient lookup failed", err)
		return
	}
	if strings.TrimSpace(address) == "" {
		return
	}
	msg := renderEmail(row.Type, row.Message)
	msg.ToEmail = address
	msg.ToName = name
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logg.Error(ctx, "notification email failed", err)
	}
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
