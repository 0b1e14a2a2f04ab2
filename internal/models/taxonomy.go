package models

import "sort"

// Taxonomy is the fixed category -> subCategory -> subSubCategory tree.
var Taxonomy = map[string]map[string][]string{
	"jewellery": {
		"necklaces": {"chains", "pendants", "chokers"},
		"rings":     {"bands", "statement", "stackable"},
		"earrings":  {"studs", "hoops", "drops"},
		"bracelets": {"bangles", "cuffs", "charm"},
	},
	"clothing": {
		"women": {"dresses", "tops", "sarees", "kurtas"},
		"men":   {"shirts", "kurtas", "trousers"},
		"kids":  {"dresses", "sets"},
	},
	"accessories": {
		"bags":    {"totes", "clutches", "backpacks"},
		"hair":    {"clips", "bands"},
		"watches": {"analog", "digital"},
	},
}

// ValidateTaxonomy checks that the three levels form a known path.
func ValidateTaxonomy(category, subCategory, subSubCategory string) *ValidationError {
	verr := &ValidationError{}
	subs, ok := Taxonomy[category]
	if !ok {
		verr.Add("category", "unknown category")
		return verr
	}
	leaves, ok := subs[subCategory]
	if !ok {
		verr.Add("sub_category", "unknown sub category for "+category)
		return verr
	}
	for _, leaf := range leaves {
		if leaf == subSubCategory {
			return nil
		}
	}
	verr.Add("sub_sub_category", "unknown sub sub category for "+category+"/"+subCategory)
	return verr
}

// TaxonomyNode is the JSON shape of one taxonomy level.
type TaxonomyNode struct {
	Name     string         `json:"name"`
	Children []TaxonomyNode `json:"children,omitempty"`
}

// TaxonomyTree returns the taxonomy sorted by name.
func TaxonomyTree() []TaxonomyNode {
	categories := make([]string, 0, len(Taxonomy))
	for c := range Taxonomy {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	tree := make([]TaxonomyNode, 0, len(categories))
	for _, c := range categories {
		node := TaxonomyNode{Name: c}
		subs := make([]string, 0, len(Taxonomy[c]))
		for s := range Taxonomy[c] {
			subs = append(subs, s)
		}
		sort.Strings(subs)
		for _, s := range subs {
			child := TaxonomyNode{Name: s}
			for _, leaf := range Taxonomy[c][s] {
				child.Children = append(child.Children, TaxonomyNode{Name: leaf})
			}
			node.Children = append(node.Children, child)
		}
		tree = append(tree, node)
	}
	return tree
}
