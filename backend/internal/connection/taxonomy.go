package connection

import (
	_ "embed"
	"fmt"
	"strings"

	apperrors "circlenet/backend/pkg/errors"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// SubRelation is one side of a relation. Reverse names the other side's
// sub-relation; empty means symmetric.
type SubRelation struct {
	Name    string `yaml:"name" json:"name"`
	Reverse string `yaml:"reverse,omitempty" json:"reverse,omitempty"`
}

// Relation groups sub-relations inside a circle
type Relation struct {
	Name         string        `yaml:"name" json:"name"`
	SubRelations []SubRelation `yaml:"sub_relations" json:"sub_relations"`
}

// CircleDef is one of Inner, Outer or Universal
type CircleDef struct {
	Name      string     `yaml:"name" json:"name"`
	Relations []Relation `yaml:"relations" json:"relations"`
}

// Taxonomy is the static circle dictionary
type Taxonomy struct {
	Circles []CircleDef `yaml:"circles" json:"circles"`
}

// Classification is a resolved circle choice with canonical names
type Classification struct {
	Circle      string
	Relation    string
	SubRelation string
	Reverse     string
}

// LoadTaxonomy parses the embedded taxonomy
func LoadTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(taxonomyYAML)
}

// ParseTaxonomy parses and checks a taxonomy document. Every reverse must
// name a sub-relation of the same relation.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if len(t.Circles) == 0 {
		return nil, fmt.Errorf("taxonomy has no circles")
	}
	for _, c := range t.Circles {
		for _, r := range c.Relations {
			names := map[string]bool{}
			for _, s := range r.SubRelations {
				names[s.Name] = true
			}
			for _, s := range r.SubRelations {
				if s.Reverse != "" && !names[s.Reverse] {
					return nil, fmt.Errorf("taxonomy: %s/%s/%s reverse %q is not a sub-relation of %s",
						c.Name, r.Name, s.Name, s.Reverse, r.Name)
				}
			}
		}
	}
	return &t, nil
}

// CircleNames lists the circles in declaration order
func (t *Taxonomy) CircleNames() []string {
	names := make([]string, 0, len(t.Circles))
	for _, c := range t.Circles {
		names = append(names, c.Name)
	}
	return names
}

// HasCircle reports whether name is a circle, ignoring case
func (t *Taxonomy) HasCircle(name string) (string, bool) {
	for _, c := range t.Circles {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

// Classify resolves a circle/relation/sub-relation triple ignoring case and
// returns canonical names with the reverse sub-relation.
func (t *Taxonomy) Classify(circle, relation, subRelation string) (Classification, error) {
	circle, relation, subRelation = strings.TrimSpace(circle), strings.TrimSpace(relation), strings.TrimSpace(subRelation)
	for _, c := range t.Circles {
		if !strings.EqualFold(c.Name, circle) {
			continue
		}
		for _, r := range c.Relations {
			if !strings.EqualFold(r.Name, relation) {
				continue
			}
			for _, s := range r.SubRelations {
				if strings.EqualFold(s.Name, subRelation) {
					reverse := s.Reverse
					if reverse == "" {
						reverse = s.Name
					}
					return Classification{Circle: c.Name, Relation: r.Name, SubRelation: s.Name, Reverse: reverse}, nil
				}
			}
			return Classification{}, apperrors.Validation("sub-relation %q is not part of %s/%s", subRelation, c.Name, r.Name)
		}
		return Classification{}, apperrors.Validation("relation %q is not part of circle %s", relation, c.Name)
	}
	return Classification{}, apperrors.Validation("unknown circle %q", circle)
}
