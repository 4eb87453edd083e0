package app

import (
	"context"
	"io"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/relay"
	"github.com/voxline/voxline/pkg/Logger"
)

// App represents the application with all its dependencies
type App struct {
	Config        *config.Settings
	Logger        *Logger.Logger
	Collaborators relay.Collaborators

	closers []io.Closer
}

// NewApp creates a new application instance with all dependencies properly
// wired. Collaborators that cannot be built (missing credentials) are left
// nil; sessions run without them and report the gap to the client.
func NewApp(ctx context.Context, cfg *config.Settings, creds config.Credentials, logger *Logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	factory := NewCollaboratorFactory(cfg, creds, logger)
	a.Collaborators = factory.Build(ctx)
	a.closers = factory.Closers()

	return a, nil
}

// Close releases the shared collaborator clients.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Errorf("failed to close collaborator: %v", err)
		}
	}
}
