// Package lineage maintains the single-parent refinement tree over
// submissions: linking with cycle and multiple-parent guards, bounded
// ancestor walks, and direct-children listing.
package lineage

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/foresight/internal/model"
)

// EdgeSource is the slice of the store the graph needs.
type EdgeSource interface {
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ParentEdge(ctx context.Context, childID string) (*model.LineageEdge, error)
	ChildEdges(ctx context.Context, parentID string) ([]model.LineageEdge, error)
	ApplyLink(ctx context.Context, edge model.LineageEdge) error
}

// Graph walks and mutates the lineage tree through a store.
type Graph struct {
	src      EdgeSource
	maxDepth int
}

// DefaultMaxDepth bounds ancestor walks when no limit is configured.
const DefaultMaxDepth = 1000

// New creates a Graph with the given ancestor-walk safety limit.
func New(src EdgeSource, maxDepth int) *Graph {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Graph{src: src, maxDepth: maxDepth}
}

// Link records childID as a refinement of parentID and returns the edge id.
// The edge insert and the parent's submitted -> superseded transition land
// in one store transaction; a failed Link leaves no trace. Fails with
// model.ErrNotFound if either submission is missing, with model.ErrCycle if
// childID is already an ancestor of parentID, and with
// model.ErrMultipleParent if childID already has a parent edge.
func (g *Graph) Link(ctx context.Context, parentID, childID string, refType model.RefinementType, depthIncrease float64) (string, error) {
	if !model.ValidRefinementType(refType) {
		return "", model.NewValidationError("refinement_type", "unknown type "+string(refType))
	}
	if depthIncrease < 0 || depthIncrease > 1 {
		return "", model.NewValidationError("depth_increase", "must be in [0,1]")
	}
	if parentID == childID {
		return "", eris.Wrapf(model.ErrCycle, "submission %s cannot refine itself", childID)
	}

	if _, err := g.src.GetSubmission(ctx, parentID); err != nil {
		return "", err
	}
	if _, err := g.src.GetSubmission(ctx, childID); err != nil {
		return "", err
	}

	existing, err := g.src.ParentEdge(ctx, childID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", eris.Wrapf(model.ErrMultipleParent, "submission %s is already a child of %s", childID, existing.ParentID)
	}

	// Linking child under parent creates a cycle exactly when child is
	// already an ancestor of parent.
	for step, err := range g.Ancestors(ctx, parentID) {
		if err != nil {
			return "", err
		}
		if step.Ancestor.ID == childID {
			return "", eris.Wrapf(model.ErrCycle, "submission %s is an ancestor of %s", childID, parentID)
		}
	}

	edge := model.LineageEdge{
		ID:             uuid.New().String(),
		ParentID:       parentID,
		ChildID:        childID,
		RefinementType: refType,
		DepthIncrease:  depthIncrease,
		CreatedAt:      time.Now().UTC(),
	}
	if err := g.src.ApplyLink(ctx, edge); err != nil {
		return "", err
	}
	return edge.ID, nil
}

// Ancestors returns a lazy, finite, restartable walk from id up to the
// root, nearest parent first. Each range over the sequence re-walks from
// the start. A root submission yields nothing. An unknown id yields a
// single model.ErrNotFound; a walk past the safety limit yields a single
// model.ErrTruncated rather than looping.
func (g *Graph) Ancestors(ctx context.Context, id string) iter.Seq2[model.AncestorStep, error] {
	return func(yield func(model.AncestorStep, error) bool) {
		if _, err := g.src.GetSubmission(ctx, id); err != nil {
			yield(model.AncestorStep{}, err)
			return
		}

		cur := id
		for dist := 1; ; dist++ {
			edge, err := g.src.ParentEdge(ctx, cur)
			if err != nil {
				yield(model.AncestorStep{}, err)
				return
			}
			if edge == nil {
				return // reached the root
			}
			if dist > g.maxDepth {
				yield(model.AncestorStep{}, eris.Wrapf(model.ErrTruncated,
					"walk from %s exceeded %d ancestors", id, g.maxDepth))
				return
			}

			anc, err := g.src.GetSubmission(ctx, edge.ParentID)
			if err != nil {
				yield(model.AncestorStep{}, err)
				return
			}

			if !yield(model.AncestorStep{Edge: *edge, Ancestor: *anc, Distance: dist}, nil) {
				return
			}
			cur = edge.ParentID
		}
	}
}

// Descendants returns the direct children of id, oldest link first. Display
// only; credit backpropagation never walks downward.
func (g *Graph) Descendants(ctx context.Context, id string) ([]model.Submission, error) {
	if _, err := g.src.GetSubmission(ctx, id); err != nil {
		return nil, err
	}

	edges, err := g.src.ChildEdges(ctx, id)
	if err != nil {
		return nil, err
	}

	children := make([]model.Submission, 0, len(edges))
	for _, e := range edges {
		child, err := g.src.GetSubmission(ctx, e.ChildID)
		if err != nil {
			return nil, err
		}
		children = append(children, *child)
	}
	return children, nil
}
