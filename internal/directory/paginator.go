package directory

import "context"

// DefaultPageSize is the batch size used when none is configured.
const DefaultPageSize = 100

// Lister is the single directory capability the paginator needs.
type Lister interface {
	ListUsers(ctx context.Context, limit, offset int) ([]Record, error)
}

// Paginator walks the directory in fixed-size pages. It is stateless between
// calls; the caller advances the offset.
type Paginator struct {
	lister   Lister
	pageSize int
}

func NewPaginator(l Lister, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Paginator{lister: l, pageSize: pageSize}
}

// PageSize returns the configured batch size.
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// NextPage fetches one page at the given offset. exhausted is true when the
// page came back shorter than the page size. That is a heuristic: a directory
// whose total count is an exact multiple of the page size costs one extra
// empty fetch. No retry is attempted; retry policy belongs to the caller.
func (p *Paginator) NextPage(ctx context.Context, offset int) (records []Record, exhausted bool, err error) {
	records, err = p.lister.ListUsers(ctx, p.pageSize, offset)
	if err != nil {
		return nil, false, err
	}
	return records, len(records) < p.pageSize, nil
}
