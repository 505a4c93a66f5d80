package service

import (
	"context"
	"errors"
	"log/slog"

	"biblioteca/internal/catalog/models"
	"biblioteca/internal/catalog/store"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, item *models.Item) error
	FindByID(ctx context.Context, itemID id.ItemID) (*models.Item, error)
	List(ctx context.Context, availableOnly bool) ([]*models.Item, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages the catalogue of lendable items.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItem adds a title with all its copies on the shelf.
func (s *Service) CreateItem(ctx context.Context, actor id.AccountID, req *models.CreateItemRequest) (*models.Item, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	item, err := models.NewItem(id.NewItemID(), req.Title, req.Author, req.Genre, req.Copies, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create item")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventCatalogItemAdded),
			"item_id", item.ID.String(),
			"actor_id", actor.String(),
			"event", string(audit.EventCatalogItemAdded),
			"log_type", "audit",
		)
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			AccountID: actor,
			Subject:   item.ID.String(),
			Action:    string(audit.EventCatalogItemAdded),
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   actor.String(),
		})
	}
	return item, nil
}

// ListItems returns the catalogue, optionally only what can be borrowed now.
func (s *Service) ListItems(ctx context.Context, availableOnly bool) ([]*models.Item, error) {
	items, err := s.store.List(ctx, availableOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list items")
	}
	return items, nil
}

func (s *Service) GetItem(ctx context.Context, itemID id.ItemID) (*models.Item, error) {
	item, err := s.store.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Libro no encontrado")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load item")
	}
	return item, nil
}
