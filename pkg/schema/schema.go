// Package schema merges the properties of an extraction into the property
// schema of a tag block. Schemas only grow: fields are never removed or
// retyped, and TextChoices fields gain new choices.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/host"
)

type ChangeKind string

const (
	ChangeAdd          ChangeKind = "add"
	ChangeMergeChoices ChangeKind = "merge_choices"
)

// Change is one staged schema write. Property carries name, type and
// typeArgs; values are never part of a schema.
type Change struct {
	Kind     ChangeKind
	Property models.Property
	// Added lists the choice names a merge introduced.
	Added []string
}

// Reconcile computes the staged changes that bring existing up to date with
// incoming. Neither input is modified. Reconciling the result again yields
// no changes.
func Reconcile(existing, incoming []models.Property) []Change {
	working := make(map[string]models.Property, len(existing))
	for _, p := range existing {
		if _, dup := working[p.Name]; !dup {
			working[p.Name] = p
		}
	}

	var changes []Change
	staged := map[string]int{}

	stage := func(c Change) {
		working[c.Property.Name] = c.Property
		if i, ok := staged[c.Property.Name]; ok {
			c.Kind = changes[i].Kind
			c.Added = append(changes[i].Added, c.Added...)
			changes[i] = c
			return
		}
		staged[c.Property.Name] = len(changes)
		changes = append(changes, c)
	}

	for _, in := range incoming {
		if in.Name == "" {
			continue
		}
		current, ok := working[in.Name]
		if !ok {
			field := models.Property{Name: in.Name, Type: in.Type, TypeArgs: in.TypeArgs.Clone()}
			if field.TypeArgs.IsEmpty() {
				field.TypeArgs = nil
			}
			stage(Change{Kind: ChangeAdd, Property: field})
			continue
		}
		if current.Type != models.PropertyTypeTextChoices || in.Type != models.PropertyTypeTextChoices {
			continue
		}
		if merged, added := mergeChoices(current, in); len(added) > 0 {
			stage(Change{Kind: ChangeMergeChoices, Property: merged, Added: added})
		}
	}
	return changes
}

// mergeChoices appends the choices of in that current lacks, by name.
func mergeChoices(current, in models.Property) (models.Property, []string) {
	have := map[string]bool{}
	if current.TypeArgs != nil {
		for _, c := range current.TypeArgs.Choices {
			have[c.Name] = true
		}
	}

	var candidates []models.Choice
	if in.TypeArgs != nil {
		candidates = in.TypeArgs.Choices
	}
	if len(candidates) == 0 {
		if values, ok := in.Value.([]string); ok {
			for _, v := range values {
				candidates = append(candidates, models.Choice{Name: v})
			}
		}
	}

	var added []string
	args := current.TypeArgs.Clone()
	if args == nil {
		args = &models.TypeArgs{}
	}
	for _, c := range candidates {
		if c.Name == "" || have[c.Name] {
			continue
		}
		have[c.Name] = true
		args.Choices = append(args.Choices, models.Choice{Name: c.Name, Color: c.Color})
		added = append(added, c.Name)
	}
	if len(added) == 0 {
		return current, nil
	}
	args.SubType = models.SubTypeMulti

	return models.Property{Name: current.Name, Type: current.Type, TypeArgs: args}, added
}

// Reconciler applies staged changes to tag blocks through a BlockStore.
// Reconciliation of one tag name is serialized within the process.
type Reconciler struct {
	store  host.BlockStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconciler(store host.BlockStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, locks: map[string]*sync.Mutex{}}
}

func (r *Reconciler) lock(tagName string) func() {
	r.mu.Lock()
	l, ok := r.locks[tagName]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tagName] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Sync reads the schema of tagBlockID, reconciles incoming against it and
// issues one batched write when anything changed. Errors wrap
// models.ErrSchemaSync.
func (r *Reconciler) Sync(ctx context.Context, tagName, tagBlockID string, incoming []models.Property) ([]Change, error) {
	unlock := r.lock(tagName)
	defer unlock()

	tag, err := r.store.GetBlock(ctx, tagBlockID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tag %s: %w", models.ErrSchemaSync, tagName, err)
	}

	changes := Reconcile(tag.Properties, incoming)
	if len(changes) == 0 {
		r.logger.Debug("tag schema up to date", "tag", tagName)
		return nil, nil
	}

	batch := make([]models.Property, 0, len(changes))
	for _, c := range changes {
		batch = append(batch, c.Property)
	}
	if err := r.store.SetBlockProperties(ctx, tagBlockID, batch); err != nil {
		return nil, fmt.Errorf("%w: failed to update tag %s: %w", models.ErrSchemaSync, tagName, err)
	}

	r.logger.Info("tag schema updated", "tag", tagName, "changes", len(changes))
	return changes, nil
}
