package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationGraph_ProducerIndex(t *testing.T) {
	g := NewOperationGraph([]*OperationNode{
		{ID: "createUser", Produces: []string{"userId"}, PrimaryProduces: []string{"userId"}},
		{ID: "importUsers", Produces: []string{"userId", "groupId"}},
	}, nil, nil)

	assert.ElementsMatch(t, []string{"createUser", "importUsers"}, g.ProducersOf("userId"))
	assert.Equal(t, []string{"createUser"}, g.PrimaryProducersOf("userId"))
	assert.Equal(t, []string{"importUsers"}, g.ProducersOf("groupId"))
	assert.Empty(t, g.ProducersOf("unknown"))
}

func TestNewOperationGraph_ProducerIndexSorted(t *testing.T) {
	g := NewOperationGraph([]*OperationNode{
		{ID: "zeta", Produces: []string{"thing"}},
		{ID: "alpha", Produces: []string{"thing"}},
	}, nil, nil)

	assert.Equal(t, []string{"alpha", "zeta"}, g.ProducersOf("thing"),
		"producer lists must be sorted for deterministic expansion order")
}

func TestNewOperationGraph_ArtifactRulesExtendIndex(t *testing.T) {
	domain := &DomainSemantics{
		OperationArtifactRules: map[string]ArtifactRuleSet{
			"deploy": {
				Composable: true,
				Rules: []ArtifactRule{
					{ID: "r-process", ArtifactKind: "processModel", ProducesSemantics: []string{"processDefinitionKey"}, ProducesStates: []string{"processDeployed"}},
					{ID: "r-decision", ArtifactKind: "decisionModel", ProducesSemantics: []string{"decisionDefinitionKey"}},
				},
			},
		},
	}
	g := NewOperationGraph([]*OperationNode{
		{ID: "deploy", Produces: []string{"deploymentKey"}},
	}, nil, domain)

	assert.Equal(t, []string{"deploy"}, g.ProducersOf("processDefinitionKey"),
		"rule productions must be reachable through the reverse index")
	assert.Equal(t, []string{"deploy"}, g.ProducersOf("decisionDefinitionKey"))
	assert.Equal(t, []string{"deploy"}, g.DomainProducersOf("processDeployed"))
}

func TestNewOperationGraph_DomainProducerIncludesImplicitAdds(t *testing.T) {
	g := NewOperationGraph([]*OperationNode{
		{ID: "deploy", DomainProduces: []string{"deployed"}, DomainImplicitAdds: []string{"instanceStarted"}},
	}, nil, nil)

	assert.Equal(t, []string{"deploy"}, g.DomainProducersOf("deployed"))
	assert.Equal(t, []string{"deploy"}, g.DomainProducersOf("instanceStarted"))
}

func TestOperationGraph_Fingerprint_StableAndContentSensitive(t *testing.T) {
	build := func(path string) *OperationGraph {
		return NewOperationGraph([]*OperationNode{
			{ID: "op", Method: "POST", Path: path, Produces: []string{"x"}},
		}, nil, nil)
	}

	a := build("/things")
	b := build("/things")
	c := build("/others")

	require.NotEmpty(t, a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "equivalent graphs share a fingerprint")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint(), "content changes must change the fingerprint")
}

func TestDomainSemantics_StateRequires(t *testing.T) {
	d := &DomainSemantics{
		RuntimeStates: map[string]RuntimeState{
			"instanceStarted": {Requires: []string{"processDeployed"}},
		},
	}

	assert.Equal(t, []string{"processDeployed"}, d.StateRequires("instanceStarted"))
	assert.Nil(t, d.StateRequires("processDeployed"), "states without declared requires have none")

	var nilDomain *DomainSemantics
	assert.Nil(t, nilDomain.StateRequires("anything"), "nil sidecar must be safe")
}

func TestStringSet_CloneIsIndependent(t *testing.T) {
	orig := NewStringSet("a")
	clone := orig.Clone()
	clone.Add("b")

	assert.False(t, orig.Has("b"), "mutating a clone must not alias the parent")
	assert.True(t, clone.Has("a"))
}
