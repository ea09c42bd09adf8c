package orchestrator

import (
	"context"
	"fmt"

	"github.com/ak125/contentgate/internal/compiler"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/store"
)

// workspace exposes the active content of one (item, role) to the repair
// loop. Every Save is a new content version.
type workspace struct {
	o        *Orchestrator
	job      Job
	label    string
	hasBrief bool
	snapshot string // the compiled page the loop started from
}

func (w *workspace) Load(ctx context.Context) (string, error) {
	v, err := w.o.store.ActiveContent(ctx, w.job.ItemID, w.job.Role)
	if err != nil {
		return "", fmt.Errorf("load active content: %w", err)
	}
	return v.HTML, nil
}

func (w *workspace) Save(ctx context.Context, page string) error {
	origin := store.OriginRepair
	if page == w.snapshot {
		origin = store.OriginRevert
	}
	if _, err := w.o.store.SaveContent(ctx, w.job.ItemID, w.job.Role, page, origin, ""); err != nil {
		return fmt.Errorf("save repaired content: %w", err)
	}
	return nil
}

// Regenerate refetches material under scope and recompiles the page.
func (w *workspace) Regenerate(ctx context.Context, scope content.Scope) (string, error) {
	m, err := w.o.source.Fetch(ctx, w.job.ItemID, w.job.Role, scope)
	if err != nil {
		return "", fmt.Errorf("refetch %s material: %w", scope, err)
	}
	res := w.o.compiler.Compile(compiler.Input{
		Role:           w.job.Role,
		Sections:       m.Sections,
		Claims:         m.Claims,
		ItemLabel:      w.label,
		HasActiveBrief: w.hasBrief,
	})
	return w.o.compiler.Assemble(res.Sections), nil
}
