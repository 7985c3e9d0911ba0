package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	catalogerrors "cardoctor/internal/catalog/errors"
	"cardoctor/internal/catalog/repository"
	apperrors "cardoctor/pkg/errors"
	"cardoctor/pkg/logger"
	"cardoctor/pkg/model"
	"cardoctor/pkg/query"
)

// detailProjection is the view returned for a single service.
var detailProjection = query.Fields(
	model.ServiceFieldTitle,
	model.ServiceFieldPrice,
	model.ServiceFieldServiceID,
	model.ServiceFieldImg,
)

type CatalogService interface {
	List(ctx context.Context, sort, search string) ([]model.ServiceDocument, error)
	GetByID(ctx context.Context, id string) (model.ServiceDocument, error)
}

type catalogService struct {
	repo repository.ServiceRepository
	log  *logger.Logger
}

func NewCatalogService(repo repository.ServiceRepository, log *logger.Logger) CatalogService {
	return &catalogService{
		repo: repo,
		log:  log,
	}
}

// List returns services whose title contains search, ignoring case, ordered
// by price. Ascending only when sort is numerically 1.
func (s *catalogService) List(ctx context.Context, sort, search string) ([]model.ServiceDocument, error) {
	filter := query.Where()
	if search != "" {
		filter = filter.And(query.Contains(model.ServiceFieldTitle, search))
	}

	services, err := s.repo.Find(ctx, filter, query.SortBy(model.ServiceFieldPrice, PriceDirection(sort)))
	if err != nil {
		s.log.Error("Failed to list services", "error", err)
		return nil, apperrors.Internal("Internal server error", err)
	}
	if services == nil {
		services = []model.ServiceDocument{}
	}
	return services, nil
}

// GetByID returns nil without error when no service has the id. A malformed
// id is a store failure, not a client error.
func (s *catalogService) GetByID(ctx context.Context, id string) (model.ServiceDocument, error) {
	service, err := s.repo.FindByID(ctx, id, detailProjection)
	if err != nil {
		if errors.Is(err, catalogerrors.ErrNotFound) {
			return nil, nil
		}
		s.log.Error("Failed to retrieve service", "id", id, "error", err)
		return nil, apperrors.Internal("Internal server error", err)
	}
	return service, nil
}

func PriceDirection(sort string) query.Direction {
	if n, err := strconv.ParseFloat(strings.TrimSpace(sort), 64); err == nil && n == 1 {
		return query.Ascending
	}
	return query.Descending
}
