package service

import "context"

// Resource kinds reported by Cleanup.
const (
	KindStream = "stream"
	KindView   = "view"
	KindType   = "type"
)

// CleanupPlan lists the resources to delete. Streams go first, then
// stream views, then types, so that references are released before the
// definitions they point to.
type CleanupPlan struct {
	Streams []string
	Views   []string
	Types   []string
}

// Result is the outcome of one attempted deletion.
type Result struct {
	Kind string
	ID   string
	Err  error
}

// OK reports whether the deletion succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Cleanup attempts every deletion in plan and reports each outcome. A
// failure never stops the remaining deletions.
func (s *Service) Cleanup(ctx context.Context, plan CleanupPlan) []Result {
	results := make([]Result, 0, len(plan.Streams)+len(plan.Views)+len(plan.Types))
	for _, id := range plan.Streams {
		results = append(results, Result{Kind: KindStream, ID: id, Err: s.DeleteStream(ctx, id)})
	}
	for _, id := range plan.Views {
		results = append(results, Result{Kind: KindView, ID: id, Err: s.DeleteView(ctx, id)})
	}
	for _, id := range plan.Types {
		results = append(results, Result{Kind: KindType, ID: id, Err: s.DeleteType(ctx, id)})
	}
	for _, r := range results {
		if !r.OK() {
			s.logger.Warn("cleanup step failed", "kind", r.Kind, "id", r.ID, "error", r.Err)
		}
	}
	return results
}
