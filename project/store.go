package project

import (
	"context"

	"github.com/veritext/humanizer/id"
)

// Store persists saved projects.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, projID id.ProjectID) (*Project, error)
	ListProjects(ctx context.Context, userID string, opts ListOpts) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, projID id.ProjectID) error
}
