package v1

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/server/middleware"
)

func principalFrom(ctx context.Context) (*domain.Principal, error) {
	p, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing principal")
	}
	return p, nil
}
