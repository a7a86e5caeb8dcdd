package workflow

import (
	"context"

	"github.com/sst/sst/internal/domain/safety"
)

// Advisory is a non-blocking recommendation returned alongside a successful
// write.
type Advisory struct {
	Code        string       `json:"codigo"`
	Message     string       `json:"mensaje"`
	Field       safety.Field `json:"campo,omitempty"`
	Recommended string       `json:"recomendado,omitempty"`
}

// Advisor inspects a document edit after it has been accepted and before it
// is saved. Advisors never veto: an error from an advisor fails the request.
type Advisor interface {
	Advise(ctx context.Context, before, after *safety.Document) ([]Advisory, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, before, after *safety.Document) ([]Advisory, error)

func (f AdvisorFunc) Advise(ctx context.Context, before, after *safety.Document) ([]Advisory, error) {
	return f(ctx, before, after)
}
