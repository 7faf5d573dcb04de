package coverage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opweave/opweave/internal/ir"
	"github.com/opweave/opweave/internal/testutil"
)

func op(id string, requires, optional, produces []string) *ir.OperationNode {
	return &ir.OperationNode{
		ID:       id,
		Method:   "POST",
		Path:     "/" + id,
		Requires: ir.Requires{Required: requires, Optional: optional},
		Produces: produces,
	}
}

func keys(c *ir.ScenarioCollection) []string {
	out := make([]string, len(c.Scenarios))
	for i, s := range c.Scenarios {
		out[i] = s.VariantKey
	}
	return out
}

func TestGenerate_BaseVariantOnly(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("listThings", nil, nil, nil),
	}, nil, nil)

	c := Generate(g, "listThings", Options{})

	require.Len(t, c.Scenarios, 2)
	assert.Equal(t, []string{"base", "negative-empty"}, keys(c))

	base := c.Scenarios[0]
	assert.Equal(t, "scenario-1", base.ID)
	assert.Equal(t, []string{"base"}, base.CoverageTags)
	require.NotNil(t, base.ExpectedResult)
	assert.Equal(t, ir.ResultNonEmpty, base.ExpectedResult.Kind)
	assert.Equal(t, []string{"listThings"}, base.OperationIDs())
}

func TestGenerate_PerOptionalAndAllOptionals(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("searchItems", nil, []string{"tag", "owner", "label"}, nil),
	}, nil, nil)

	c := Generate(g, "searchItems", Options{})

	assert.Equal(t, []string{
		"base",
		"opt-label", "opt-owner", "opt-tag",
		"all-optionals",
		"negative-empty",
	}, keys(c))

	optLabel := c.Scenarios[1]
	require.Contains(t, optLabel.Bindings, "label")
	assert.Equal(t, ir.BindingLiteral, optLabel.Bindings["label"].Kind)
	assert.NotEmpty(t, optLabel.Bindings["label"].Value)
	require.NotNil(t, optLabel.Variant)
	assert.Equal(t, []string{"label"}, optLabel.Variant.IncludeOptionals)

	all := c.Scenarios[4]
	assert.Equal(t, []string{"label", "owner", "tag"}, all.Variant.IncludeOptionals)
	assert.Len(t, all.Bindings, 3)
}

func TestGenerate_AllOptionalsSkippedOverLimit(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("searchItems", nil, []string{"tag", "owner", "label"}, nil),
	}, nil, nil)

	c := Generate(g, "searchItems", Options{AllOptionalsLimit: 2})

	assert.NotContains(t, keys(c), "all-optionals")
}

func TestGenerate_NegativeEmptyBindings(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("searchItems", nil, []string{"tag"}, nil),
	}, nil, nil)

	c := Generate(g, "searchItems", Options{})

	var empty *ir.EndpointScenario
	for _, s := range c.Scenarios {
		if s.VariantKey == "negative-empty" {
			empty = s
		}
	}
	require.NotNil(t, empty)
	assert.Equal(t, ir.ResultEmpty, empty.ExpectedResult.Kind)
	require.Contains(t, empty.Bindings, "tag")
	assert.Equal(t, ir.BindingAbsent, empty.Bindings["tag"].Kind)
	assert.Equal(t, ir.NegativeEmpty, empty.Variant.Negative)
}

func TestGenerate_NoNegativeEmptyWithRequiredSemantics(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("createKey", nil, nil, []string{"Key"}),
		op("useKey", []string{"Key"}, nil, nil),
	}, nil, nil)

	c := Generate(g, "useKey", Options{})

	assert.NotContains(t, keys(c), "negative-empty")
}

func TestGenerate_MissingRequiredFieldExpansion(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("createUser", nil, nil, nil),
	}, nil, nil)
	shapes := &ir.ShapeIndex{
		Requests: map[string]ir.MediaShapes{
			"createUser": {
				"application/json": []ir.CanonicalField{
					{Path: "name", Pointer: "/name", Type: "string", Required: true},
					{Path: "age", Pointer: "/age", Type: "integer", Required: true},
					{Path: "note", Pointer: "/note", Type: "string"},
				},
			},
		},
	}

	c := Generate(g, "createUser", Options{Shapes: shapes})

	assert.Contains(t, keys(c), "missing-age")
	assert.Contains(t, keys(c), "missing-name")
	assert.NotContains(t, keys(c), "missing-note")

	for _, s := range c.Scenarios {
		if s.VariantKey != "missing-age" {
			continue
		}
		assert.Equal(t, ir.NegativeMissingRequired, s.Variant.Negative)
		assert.Equal(t, []string{"age"}, s.Variant.OmitFields)
		assert.Equal(t, ir.ResultError, s.ExpectedResult.Kind)
		assert.Equal(t, 400, s.ExpectedResult.Code)
	}
}

func TestGenerate_WrongTypeNegative(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("createUser", nil, nil, nil),
	}, nil, nil)
	shapes := &ir.ShapeIndex{
		Requests: map[string]ir.MediaShapes{
			"createUser": {
				"application/json": []ir.CanonicalField{
					{Path: "name", Pointer: "/name", Type: "string", Required: true},
				},
			},
		},
	}

	c := Generate(g, "createUser", Options{Shapes: shapes})

	require.Contains(t, keys(c), "wrong-type-name")
	for _, s := range c.Scenarios {
		if s.VariantKey != "wrong-type-name" {
			continue
		}
		assert.Equal(t, ir.NegativeSchemaViolation, s.Variant.Negative)
		assert.Equal(t, []string{"name"}, s.Variant.WrongTypeFields)
		assert.Equal(t, 400, s.ExpectedResult.Code)
	}
}

func polymorphicGroup() ir.OneOfGroup {
	return ir.OneOfGroup{
		Name:        "selector",
		Polymorphic: true,
		Variants: []ir.OneOfVariant{
			{
				Name: "byKey",
				Fields: []ir.CanonicalField{
					{Path: "key", Type: "string", Required: true},
				},
			},
			{
				Name: "byName",
				Fields: []ir.CanonicalField{
					{Path: "name", Type: "string", Required: true},
					{Path: "version", Type: "integer"},
				},
			},
		},
	}
}

func TestGenerate_OneOfVariants(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("evaluate", nil, nil, nil),
	}, nil, nil)

	c := Generate(g, "evaluate", Options{
		RequestVariants: ir.RequestVariantIndex{"evaluate": {polymorphicGroup()}},
	})

	ks := keys(c)
	assert.Contains(t, ks, "oneof-selector-byKey")
	assert.Contains(t, ks, "oneof-selector-byName")
	assert.Contains(t, ks, "oneof-selector-byName-rich")
	assert.NotContains(t, ks, "oneof-selector-byKey-rich")
	assert.Contains(t, ks, "oneof-selector-union")
	assert.Contains(t, ks, "oneof-selector-conflict-key-name")

	for _, s := range c.Scenarios {
		switch s.VariantKey {
		case "oneof-selector-byName-rich":
			assert.True(t, s.Variant.Rich)
			assert.Equal(t, "byName", s.Variant.OneOfVariant)
		case "oneof-selector-union":
			assert.True(t, s.Variant.UnionAllFields)
			assert.Equal(t, ir.ResultError, s.ExpectedResult.Kind)
			assert.Equal(t, 400, s.ExpectedResult.Code)
		case "oneof-selector-conflict-key-name":
			assert.Equal(t, []string{"key", "name"}, s.Variant.ConflictFields)
			assert.Equal(t, 400, s.ExpectedResult.Code)
		}
	}
}

func TestGenerate_NonPolymorphicGroupHasNoNegatives(t *testing.T) {
	group := polymorphicGroup()
	group.Polymorphic = false
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("evaluate", nil, nil, nil),
	}, nil, nil)

	c := Generate(g, "evaluate", Options{
		RequestVariants: ir.RequestVariantIndex{"evaluate": {group}},
	})

	ks := keys(c)
	assert.Contains(t, ks, "oneof-selector-byKey")
	assert.NotContains(t, ks, "oneof-selector-union")
	assert.NotContains(t, ks, "oneof-selector-conflict-key-name")
}

func TestGenerate_LenientSearchEndpoint(t *testing.T) {
	target := op("searchDefs", nil, nil, nil)
	target.Path = "/definitions/search"
	g := ir.NewOperationGraph([]*ir.OperationNode{target}, nil, nil)

	c := Generate(g, "searchDefs", Options{
		RequestVariants: ir.RequestVariantIndex{"searchDefs": {polymorphicGroup()}},
	})

	for _, s := range c.Scenarios {
		if s.VariantKey != "oneof-selector-union" {
			continue
		}
		assert.Equal(t, ir.ResultNonEmpty, s.ExpectedResult.Kind)
		assert.Contains(t, s.CoverageTags, "lenient")
	}
}

func TestGenerate_PairwiseConflictCap(t *testing.T) {
	group := ir.OneOfGroup{Name: "id", Polymorphic: true}
	for _, f := range []string{"a", "b", "c", "d", "e"} {
		group.Variants = append(group.Variants, ir.OneOfVariant{
			Name: "by" + f,
			Fields: []ir.CanonicalField{
				{Path: f, Type: "string", Required: true},
			},
		})
	}
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("evaluate", nil, nil, nil),
	}, nil, nil)

	c := Generate(g, "evaluate", Options{
		RequestVariants: ir.RequestVariantIndex{"evaluate": {group}},
		PairwiseMax:     3,
	})

	conflicts := 0
	for _, s := range c.Scenarios {
		if s.Variant != nil && s.Variant.Negative == ir.NegativeFieldConflict {
			conflicts++
		}
	}
	assert.Equal(t, 3, conflicts)
}

func TestGenerate_PerComposableRuleBases(t *testing.T) {
	domain := &ir.DomainSemantics{
		ArtifactKinds: map[string]ir.ArtifactKind{
			"processModel":  {Category: "process"},
			"decisionModel": {Category: "decision"},
		},
		OperationArtifactRules: map[string]ir.ArtifactRuleSet{
			"deploy": {
				Composable: true,
				Rules: []ir.ArtifactRule{
					{ID: "r-process", ArtifactKind: "processModel", Priority: 1},
					{ID: "r-decision", ArtifactKind: "decisionModel", Priority: 2},
				},
			},
		},
	}
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("deploy", nil, nil, nil),
	}, nil, domain)

	c := Generate(g, "deploy", Options{})

	assert.Equal(t, "base-r-decision", c.Scenarios[0].VariantKey)
	assert.Equal(t, "base-r-process", c.Scenarios[1].VariantKey)
	assert.Equal(t, "r-decision", c.Scenarios[0].Variant.ArtifactRule)
}

func TestGenerate_MaxVariantsCapTruncates(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("searchItems", nil, []string{"a", "b", "c", "d"}, nil),
	}, nil, nil)

	c := Generate(g, "searchItems", Options{MaxVariants: 3})

	assert.Len(t, c.Scenarios, 3)
	assert.True(t, c.Truncated)
	assert.Equal(t, []string{"base", "opt-a", "opt-b"}, keys(c))
}

func TestGenerate_UnsatisfiedPassesThrough(t *testing.T) {
	g := ir.NewOperationGraph([]*ir.OperationNode{
		op("useKey", []string{"Key"}, nil, nil),
	}, nil, nil)

	c := Generate(g, "useKey", Options{})

	assert.True(t, c.Unsatisfied)
	require.Len(t, c.Scenarios, 1)
	assert.True(t, c.Scenarios[0].Unsatisfied())
	assert.Equal(t, []string{"Key"}, c.Scenarios[0].MissingSemanticTypes)
}

func TestGenerate_Deterministic(t *testing.T) {
	build := func() []byte {
		g := ir.NewOperationGraph([]*ir.OperationNode{
			op("searchItems", nil, []string{"tag", "owner"}, nil),
		}, nil, nil)
		c := Generate(g, "searchItems", Options{
			RequestVariants: ir.RequestVariantIndex{"searchItems": {polymorphicGroup()}},
		})
		data, err := json.Marshal(c)
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, build(), build())
}

func TestGenerate_VariantsShareChain(t *testing.T) {
	c := Generate(testutil.OrdersGraph(), "getOrder", Options{})

	require.Equal(t, []string{"base", "opt-Invoice"}, keys(c))
	for _, s := range c.Scenarios {
		assert.Equal(t, []string{"createCustomer", "createOrder", "getOrder"}, s.OperationIDs())
		assert.Equal(t, "createCustomer", s.Providers["Customer"])
		assert.Equal(t, "createOrder", s.Providers["Order"])
	}
}
