package schedule

import "context"

type Repository interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id int) (*Template, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]Template, error)
	SetTemplateActive(ctx context.Context, id int, active bool) error
}
