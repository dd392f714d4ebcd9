package schema

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dtnitsch/linkmeta/models"
)

func choices(names ...string) *models.TypeArgs {
	args := &models.TypeArgs{SubType: models.SubTypeMulti}
	for _, n := range names {
		args.Choices = append(args.Choices, models.Choice{Name: n})
	}
	return args
}

func TestReconcile_MergesChoices(t *testing.T) {
	existing := []models.Property{
		{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: &models.TypeArgs{
			Choices: []models.Choice{{Name: "fiction", Color: "blue"}},
			Extra:   map[string]any{"icon": "book"},
		}},
	}
	incoming := []models.Property{
		{Name: "genre", Type: models.PropertyTypeTextChoices, Value: []string{"fiction", "nonfiction"}, TypeArgs: choices("fiction", "nonfiction")},
	}

	changes := Reconcile(existing, incoming)
	if len(changes) != 1 {
		t.Fatalf("Reconcile() staged %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Kind != ChangeMergeChoices || !reflect.DeepEqual(c.Added, []string{"nonfiction"}) {
		t.Errorf("change = %+v", c)
	}
	want := []models.Choice{{Name: "fiction", Color: "blue"}, {Name: "nonfiction"}}
	if !reflect.DeepEqual(c.Property.TypeArgs.Choices, want) {
		t.Errorf("choices = %#v, want %#v", c.Property.TypeArgs.Choices, want)
	}
	if c.Property.SubType() != models.SubTypeMulti {
		t.Errorf("subType = %q, want multi", c.Property.SubType())
	}
	if c.Property.TypeArgs.Extra["icon"] != "book" {
		t.Errorf("existing typeArgs not preserved: %#v", c.Property.TypeArgs)
	}
	if c.Property.Value != nil {
		t.Errorf("schema change carries a value: %#v", c.Property.Value)
	}
	if len(existing[0].TypeArgs.Choices) != 1 {
		t.Error("existing schema was mutated")
	}
}

func TestReconcile(t *testing.T) {
	schema := []models.Property{
		{Name: "title", Type: models.PropertyTypeText},
		{Name: "rating", Type: models.PropertyTypeNumber},
		{Name: "tags", Type: models.PropertyTypeTextChoices, TypeArgs: choices("a")},
	}

	tests := []struct {
		name     string
		incoming []models.Property
		want     []Change
	}{
		{
			name:     "nothing new",
			incoming: []models.Property{{Name: "title", Type: models.PropertyTypeText, Value: "x"}},
		},
		{
			name:     "new field added without value",
			incoming: []models.Property{{Name: "isbn", Type: models.PropertyTypeText, Value: "978"}},
			want:     []Change{{Kind: ChangeAdd, Property: models.Property{Name: "isbn", Type: models.PropertyTypeText}}},
		},
		{
			name: "new field keeps typeArgs",
			incoming: []models.Property{{Name: "cover", Type: models.PropertyTypeText, Value: "u",
				TypeArgs: &models.TypeArgs{SubType: models.SubTypeImage}}},
			want: []Change{{Kind: ChangeAdd, Property: models.Property{Name: "cover", Type: models.PropertyTypeText,
				TypeArgs: &models.TypeArgs{SubType: models.SubTypeImage}}}},
		},
		{
			name:     "type mismatch is not overwritten",
			incoming: []models.Property{{Name: "rating", Type: models.PropertyTypeText, Value: "9.4"}},
		},
		{
			name:     "choices into non-choices is not overwritten",
			incoming: []models.Property{{Name: "title", Type: models.PropertyTypeTextChoices, TypeArgs: choices("z")}},
		},
		{
			name:     "no new choice means no change",
			incoming: []models.Property{{Name: "tags", Type: models.PropertyTypeTextChoices, TypeArgs: choices("a")}},
		},
		{
			name: "duplicate incoming names collapse",
			incoming: []models.Property{
				{Name: "lang", Type: models.PropertyTypeTextChoices, TypeArgs: choices("zh")},
				{Name: "lang", Type: models.PropertyTypeTextChoices, TypeArgs: choices("en")},
			},
			want: []Change{{Kind: ChangeAdd, Added: []string{"en"}, Property: models.Property{
				Name: "lang", Type: models.PropertyTypeTextChoices, TypeArgs: choices("zh", "en")}}},
		},
		{
			name:     "unnamed ignored",
			incoming: []models.Property{{Type: models.PropertyTypeText, Value: "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(schema, tt.incoming)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reconcile() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	schema := []models.Property{{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices("fiction")}}
	incoming := []models.Property{
		{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices("fiction", "nonfiction")},
		{Name: "title", Type: models.PropertyTypeText, Value: "活着"},
	}

	first := Reconcile(schema, incoming)
	if len(first) != 2 {
		t.Fatalf("first pass staged %d changes, want 2", len(first))
	}
	schema = apply(schema, first)

	if second := Reconcile(schema, incoming); len(second) != 0 {
		t.Errorf("second pass staged %#v, want nothing", second)
	}
}

func apply(schema []models.Property, changes []Change) []models.Property {
	out := append([]models.Property(nil), schema...)
	for _, c := range changes {
		replaced := false
		for i := range out {
			if out[i].Name == c.Property.Name {
				out[i] = c.Property
				replaced = true
			}
		}
		if !replaced {
			out = append(out, c.Property)
		}
	}
	return out
}

// memStore is a BlockStore holding tag blocks in memory.
type memStore struct {
	mu       sync.Mutex
	blocks   map[string]*models.Block
	writes   int
	getErr   error
	writeErr error
}

func (s *memStore) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	b, ok := s.blocks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *b
	cp.Properties = append([]models.Property(nil), b.Properties...)
	return &cp, nil
}

func (s *memStore) SetBlockProperties(ctx context.Context, id string, props []models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	b := s.blocks[id]
	b.Properties = apply(b.Properties, changesOf(props))
	return nil
}

func changesOf(props []models.Property) []Change {
	out := make([]Change, 0, len(props))
	for _, p := range props {
		out = append(out, Change{Property: p})
	}
	return out
}

func (s *memStore) InsertTag(ctx context.Context, blockID, tagName string, props []models.Property) (string, error) {
	return "", nil
}

func (s *memStore) SetBlockContent(ctx context.Context, blockID string, content []models.InlineContent) error {
	return nil
}

func TestSync(t *testing.T) {
	store := &memStore{blocks: map[string]*models.Block{
		"tag-1": {ID: "tag-1", Properties: []models.Property{{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices("fiction")}}},
	}}
	r := NewReconciler(store, nil)
	incoming := []models.Property{{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices("fiction", "nonfiction")}}

	changes, err := r.Sync(context.Background(), "Book", "tag-1", incoming)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(changes) != 1 || store.writes != 1 {
		t.Fatalf("Sync() changes = %d writes = %d, want 1 and 1", len(changes), store.writes)
	}

	changes, err = r.Sync(context.Background(), "Book", "tag-1", incoming)
	if err != nil {
		t.Fatalf("Sync() second error = %v", err)
	}
	if len(changes) != 0 || store.writes != 1 {
		t.Errorf("second Sync() changes = %d writes = %d, want no write", len(changes), store.writes)
	}

	got := store.blocks["tag-1"].Properties[0].TypeArgs.Choices
	want := []models.Choice{{Name: "fiction"}, {Name: "nonfiction"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("schema choices = %#v, want %#v", got, want)
	}
}

func TestSync_Errors(t *testing.T) {
	incoming := []models.Property{{Name: "isbn", Type: models.PropertyTypeText}}
	tests := []struct {
		name  string
		store *memStore
	}{
		{"read fails", &memStore{getErr: errors.New("db down")}},
		{"write fails", &memStore{blocks: map[string]*models.Block{"t": {ID: "t"}}, writeErr: errors.New("locked")}},
		{"missing tag block", &memStore{blocks: map[string]*models.Block{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReconciler(tt.store, nil).Sync(context.Background(), "Book", "t", incoming)
			if !errors.Is(err, models.ErrSchemaSync) {
				t.Errorf("Sync() error = %v, want ErrSchemaSync", err)
			}
		})
	}
}

func TestSync_ConcurrentSameTag(t *testing.T) {
	store := &memStore{blocks: map[string]*models.Block{
		"tag-1": {ID: "tag-1", Properties: []models.Property{{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices()}}},
	}}
	r := NewReconciler(store, nil)

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			incoming := []models.Property{{Name: "genre", Type: models.PropertyTypeTextChoices, TypeArgs: choices(n)}}
			if _, err := r.Sync(context.Background(), "Book", "tag-1", incoming); err != nil {
				t.Errorf("Sync(%s) error = %v", n, err)
			}
		}(n)
	}
	wg.Wait()

	if got := len(store.blocks["tag-1"].Properties[0].TypeArgs.Choices); got != len(names) {
		t.Errorf("schema has %d choices, want %d (lost update)", got, len(names))
	}
}
