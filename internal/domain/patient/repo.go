package patient

import "context"

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// FindByIdentity looks up a patient by exact identity and holds a lock
	// on that identity until the surrounding transaction ends, so two
	// concurrent completions cannot both create the same patient.
	FindByIdentity(ctx context.Context, ident Identity) (int64, bool, error)
	List(ctx context.Context) ([]*ListRow, error)

	AddHistory(ctx context.Context, h *History) error
	ListHistory(ctx context.Context) ([]*HistoryRow, error)
}
