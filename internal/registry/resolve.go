package registry

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/logging"
	"github.com/uniconv/uniconv/internal/manifest"
)

// CollectionPrefix marks an install target as a collection reference.
const CollectionPrefix = "+"

// IsCollectionRef reports whether ref names a collection ("+name").
func IsCollectionRef(ref string) bool {
	return strings.HasPrefix(ref, CollectionPrefix)
}

// CollectionSource provides the collections document.
type CollectionSource interface {
	GetCollections(ctx context.Context) (*manifest.Collections, error)
}

// Resolver expands install targets into plugin names.
type Resolver struct {
	source CollectionSource
	log    logrus.FieldLogger
}

// NewResolver creates a Resolver. A nil log discards output.
func NewResolver(source CollectionSource, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{source: source, log: log}
}

// Resolve returns the ordered plugin names ref stands for. A plain name
// resolves to itself without touching the registry. A "+name" reference
// resolves to the collection's members in declared order with duplicates
// dropped (first occurrence wins). Members that are themselves collection
// references are expanded in place; a reference back to a collection
// already being expanded fails with ErrCyclicCollection.
func (r *Resolver) Resolve(ctx context.Context, ref string) ([]string, error) {
	if !IsCollectionRef(ref) {
		return []string{ref}, nil
	}

	cols, err := r.source.GetCollections(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out  []string
		seen = make(map[string]bool)
	)
	if err := r.expand(cols, strings.TrimPrefix(ref, CollectionPrefix), nil, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveAll resolves every ref and concatenates the results, again keeping
// only the first occurrence of each plugin.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, ref := range refs {
		names, err := r.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (r *Resolver) expand(cols *manifest.Collections, name string, stack []string, seen map[string]bool, out *[]string) error {
	for _, s := range stack {
		if s == name {
			return errdefs.Kind(errdefs.ErrCyclicCollection, "%s", strings.Join(append(stack, name), " -> "))
		}
	}

	col, ok := cols.Lookup(name)
	if !ok || name == "" {
		return errdefs.Kind(errdefs.ErrUnknownCollection, "%q", CollectionPrefix+name)
	}
	stack = append(stack, name)
	r.log.WithField("collection", name).Debugf("expanding %d members", len(col.Plugins))

	for _, member := range col.Plugins {
		if IsCollectionRef(member) {
			if err := r.expand(cols, strings.TrimPrefix(member, CollectionPrefix), stack, seen, out); err != nil {
				return err
			}
			continue
		}
		if !seen[member] {
			seen[member] = true
			*out = append(*out, member)
		}
	}
	return nil
}
