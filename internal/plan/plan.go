// Package plan loads and validates reconciliation plans.
//
// A plan declares the authoritative collections of the workout database,
// the dependent collections that reference them through foreign keys, and
// the subcollection migrations to apply. Plans are YAML files.
package plan

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

//go:embed default.yaml
var defaultYAML []byte

// Orphan actions.
const (
	ActionDelete = "delete"
	ActionUnset  = "unset"
)

// Plan is the declarative description of collections, relationships and
// transforms.
type Plan struct {
	Authorities []Authority `yaml:"authorities" validate:"required,min=1,dive"`
	Relations   []Relation  `yaml:"relations" validate:"dive"`
	Migrations  []Migration `yaml:"migrations" validate:"dive"`
}

// Authority is a collection whose documents are the valid parents for
// dependent collections. Documents matching any Exclude predicate are not
// valid parents.
type Authority struct {
	Collection string      `yaml:"collection" validate:"required"`
	Exclude    []Predicate `yaml:"exclude" validate:"dive"`
}

// Predicate matches a document whose Field equals Equals. With Null set it
// matches a field that is present and null. A predicate with neither matches
// when the field is boolean true.
type Predicate struct {
	Field  string `yaml:"field" validate:"required"`
	Equals any    `yaml:"equals"`
	Null   bool   `yaml:"null"`
}

// Relation declares a dependent collection and how its documents point at a
// parent.
type Relation struct {
	// Name identifies the relation; other relations may reference it.
	// Defaults to Collection.
	Name string `yaml:"name"`
	// Collection is a collection path, or a collection ID when Group is set.
	Collection string `yaml:"collection" validate:"required"`
	// Group matches every collection with this ID at any depth.
	Group bool `yaml:"group"`
	// ForeignKey is the field holding the parent ID (a string or an array
	// of strings). Empty means the owning document's ID, for subcollections.
	ForeignKey string `yaml:"foreign_key"`
	// References names an authority collection or another relation.
	// Defaults to the first authority.
	References string `yaml:"references"`
	// OnOrphan is "delete" (default) or "unset".
	OnOrphan string `yaml:"on_orphan" validate:"omitempty,oneof=delete unset"`
	// MissingIsOrphan treats an absent or empty foreign key as dangling.
	MissingIsOrphan bool `yaml:"missing_is_orphan"`
	// Cascade also deletes the subcollections of deleted orphans.
	Cascade bool `yaml:"cascade"`
}

// Migration moves the array field of each document in Collection into a
// child subcollection.
type Migration struct {
	Name          string `yaml:"name" validate:"required"`
	Collection    string `yaml:"collection" validate:"required"`
	Field         string `yaml:"field" validate:"required"`
	Subcollection string `yaml:"subcollection" validate:"required,excludesall=/"`
	IDField       string `yaml:"id_field"`
	ParentField   string `yaml:"parent_field"`
	OrderField    string `yaml:"order_field"`
	KeepSource    bool   `yaml:"keep_source"`
}

// Target returns the scan target for the relation's documents.
func (r Relation) Target() scan.Target {
	if r.Group {
		return scan.Group(r.Collection)
	}
	return scan.Collection(r.Collection)
}

// ParentKeyed reports whether the relation uses the owning document's ID
// as its foreign key.
func (r Relation) ParentKeyed() bool {
	return r.ForeignKey == ""
}

// Action returns the orphan action with its default applied.
func (r Relation) Action() string {
	if r.OnOrphan == "" {
		return ActionDelete
	}
	return r.OnOrphan
}

// Matches reports whether doc satisfies the predicate.
func (p Predicate) Matches(doc types.Document) bool {
	v, ok := doc.Field(p.Field)
	if !ok {
		return false
	}
	if p.Null {
		return v == nil
	}
	if p.Equals == nil {
		b, isBool := v.(bool)
		return isBool && b
	}
	return valuesEqual(v, p.Equals)
}

// Excluded reports whether doc matches any of the authority's predicates.
func (a Authority) Excluded(doc types.Document) bool {
	for _, p := range a.Exclude {
		if p.Matches(doc) {
			return true
		}
	}
	return false
}

// Default returns the built-in plan for the workout database.
func Default() *Plan {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("default plan: %v", err))
	}
	return p
}

// DefaultYAML returns the built-in plan source, as written by "coachdb init".
func DefaultYAML() []byte {
	return bytes.Clone(defaultYAML)
}

// Load reads and validates the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML, applies defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPlan, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) applyDefaults() {
	for i := range p.Authorities {
		p.Authorities[i].Collection = strings.Trim(p.Authorities[i].Collection, "/")
	}
	for i := range p.Relations {
		r := &p.Relations[i]
		r.Collection = strings.Trim(r.Collection, "/")
		if r.Name == "" {
			r.Name = r.Collection
		}
		if r.References == "" && len(p.Authorities) > 0 {
			r.References = p.Authorities[0].Collection
		}
	}
}

var validate = validator.New()

// Validate checks struct constraints, then the relation graph: every
// reference resolves, names are unique, and references form no cycle.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPlan, err)
	}

	names := make(map[string]bool)
	for _, a := range p.Authorities {
		if err := types.ValidateCollectionPath(a.Collection); err != nil {
			return fmt.Errorf("%w: authority: %v", types.ErrInvalidPlan, err)
		}
		if names[a.Collection] {
			return fmt.Errorf("%w: duplicate authority %q", types.ErrInvalidPlan, a.Collection)
		}
		names[a.Collection] = true
	}

	for _, r := range p.Relations {
		if names[r.Name] {
			return fmt.Errorf("%w: duplicate relation name %q", types.ErrInvalidPlan, r.Name)
		}
		names[r.Name] = true

		if r.Group {
			if strings.Contains(r.Collection, "/") {
				return fmt.Errorf("%w: relation %q: group collection must be a single ID", types.ErrInvalidPlan, r.Name)
			}
		} else if err := types.ValidateCollectionPath(r.Collection); err != nil {
			return fmt.Errorf("%w: relation %q: %v", types.ErrInvalidPlan, r.Name, err)
		}

		if r.ParentKeyed() {
			if !r.Group && types.ParentPath(r.Collection) == "" {
				return fmt.Errorf("%w: relation %q: root collection needs a foreign_key", types.ErrInvalidPlan, r.Name)
			}
			if r.Action() == ActionUnset {
				return fmt.Errorf("%w: relation %q: on_orphan unset needs a foreign_key", types.ErrInvalidPlan, r.Name)
			}
		}
		if r.Cascade && r.Action() != ActionDelete {
			return fmt.Errorf("%w: relation %q: cascade requires on_orphan delete", types.ErrInvalidPlan, r.Name)
		}
	}

	for _, r := range p.Relations {
		if r.References == r.Name {
			return fmt.Errorf("%w: relation %q references itself", types.ErrInvalidPlan, r.Name)
		}
		if !names[r.References] {
			return fmt.Errorf("%w: relation %q references unknown %q", types.ErrInvalidPlan, r.Name, r.References)
		}
	}
	if _, err := p.Order(); err != nil {
		return err
	}

	rules := make(map[string]bool)
	for _, m := range p.Migrations {
		if rules[m.Name] {
			return fmt.Errorf("%w: duplicate migration %q", types.ErrInvalidPlan, m.Name)
		}
		rules[m.Name] = true
		if err := types.ValidateCollectionPath(m.Collection); err != nil {
			return fmt.Errorf("%w: migration %q: %v", types.ErrInvalidPlan, m.Name, err)
		}
	}
	return nil
}

// Authority returns the authority for collection.
func (p *Plan) Authority(collection string) (Authority, bool) {
	for _, a := range p.Authorities {
		if a.Collection == collection {
			return a, true
		}
	}
	return Authority{}, false
}

// Relation returns the relation with the given name.
func (p *Plan) Relation(name string) (Relation, bool) {
	for _, r := range p.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Migration returns the migration rule with the given name.
func (p *Plan) Migration(name string) (Migration, error) {
	for _, m := range p.Migrations {
		if m.Name == name {
			return m, nil
		}
	}
	return Migration{}, fmt.Errorf("%w: %q", types.ErrUnknownRule, name)
}

// Order returns the relations sorted so that every relation follows the
// relation it references. Ties keep declaration order.
func (p *Plan) Order() ([]Relation, error) {
	index := make(map[string]int, len(p.Relations))
	for i, r := range p.Relations {
		index[r.Name] = i
	}

	done := make([]bool, len(p.Relations))
	out := make([]Relation, 0, len(p.Relations))
	for len(out) < len(p.Relations) {
		progressed := false
		for i, r := range p.Relations {
			if done[i] {
				continue
			}
			if j, isRelation := index[r.References]; isRelation && !done[j] {
				continue
			}
			done[i] = true
			out = append(out, r)
			progressed = true
		}
		if !progressed {
			var stuck []string
			for i, r := range p.Relations {
				if !done[i] {
					stuck = append(stuck, r.Name)
				}
			}
			return nil, fmt.Errorf("%w: reference cycle among %s", types.ErrInvalidPlan, strings.Join(stuck, ", "))
		}
	}
	return out, nil
}

// Targets returns the scan targets of every authority and relation.
func (p *Plan) Targets() []scan.Target {
	var out []scan.Target
	for _, a := range p.Authorities {
		out = append(out, scan.Collection(a.Collection))
	}
	for _, r := range p.Relations {
		out = append(out, r.Target())
	}
	return out
}

// valuesEqual compares a stored value with a plan value, treating all
// numeric types as comparable.
func valuesEqual(stored, want any) bool {
	if a, ok := toFloat(stored); ok {
		b, ok := toFloat(want)
		return ok && a == b
	}
	return reflect.DeepEqual(stored, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
