package service

import (
	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/scope"
)

// Engine wires the services that keep a user's tree, snippets and
// annotations consistent. All of them share one scope manager, so a
// compound mutation started through any service excludes every other one
// for the same user.
type Engine struct {
	Cascade     *Cascade
	Snippets    *SnippetService
	Namespaces  *NamespaceService
	Annotations *AnnotationService
	Users       *UserService
}

func NewEngine(d Deps, passwords PasswordHasher) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Scopes == nil {
		d.Scopes = scope.New(scope.Config{}, d.Logger, d.Metrics)
	}

	cascade := NewCascade()
	snippets := NewSnippetService(d, cascade)
	namespaces := NewNamespaceService(d, snippets)
	annotations := NewAnnotationService(d)
	annotations.Subscribe(cascade)

	return &Engine{
		Cascade:     cascade,
		Snippets:    snippets,
		Namespaces:  namespaces,
		Annotations: annotations,
		Users:       NewUserService(d, namespaces, snippets, passwords),
	}
}
