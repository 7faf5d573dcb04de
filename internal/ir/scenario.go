package ir

// ScenarioUnsatisfiedID is the well-known id of the single scenario emitted
// when a required semantic type has no producer anywhere in the graph.
const ScenarioUnsatisfiedID = "unsatisfied"

// Expected result kinds.
const (
	ResultNonEmpty = "nonEmpty"
	ResultEmpty    = "empty"
	ResultError    = "error"
)

// ExpectedResult describes the outcome a generated test asserts on.
type ExpectedResult struct {
	Kind string `json:"kind"`
	// Code is the expected HTTP status for Kind == ResultError.
	Code int `json:"code,omitempty"`
}

// OperationRef identifies one step of a scenario's ordered chain.
type OperationRef struct {
	OperationID string `json:"operationId"`
	Method      string `json:"method"`
	Path        string `json:"path"`
}

// Binding value kinds.
const (
	BindingLiteral = "literal"
	BindingPending = "pending"
	// BindingAbsent marks a placeholder that must reference a value known
	// not to exist, used by negative "expect empty" variants.
	BindingAbsent = "absent"
)

// BindingValue is one entry of a scenario's placeholder table. Literal
// values are embedded directly; pending values are resolved by the emitter
// against runtime captures.
type BindingValue struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// Expectation is the per-step success condition of a request plan.
type Expectation struct {
	Status int `json:"status"`
}

// Extraction captures a response field from a step into a named binding for
// use by later steps.
type Extraction struct {
	// Field is the dotted response field path (without "response." prefix).
	Field string `json:"field"`
	// Binding is the placeholder name the captured value is stored under.
	Binding string `json:"binding"`
}

// Body kinds for request steps.
const (
	BodyKindJSON      = "json"
	BodyKindMultipart = "multipart"
)

// RequestStep is one executable-shaped step of a scenario's request plan.
type RequestStep struct {
	OperationID  string      `json:"operationId"`
	Method       string      `json:"method"`
	PathTemplate string      `json:"pathTemplate"`
	BodyKind     string      `json:"bodyKind,omitempty"`
	// BodyTemplate holds the synthesized request body for json bodies,
	// MultipartTemplate the per-part map for multipart bodies. At most one
	// is set, chosen by the plan builder's media-type preference.
	BodyTemplate      *BodyObject  `json:"bodyTemplate,omitempty"`
	MultipartTemplate *BodyObject  `json:"multipartTemplate,omitempty"`
	Expect            Expectation  `json:"expect"`
	Extract           []Extraction `json:"extract,omitempty"`
}

// EndpointScenario is one resolved test case: a prerequisite chain plus the
// target endpoint invocation. Created once per accepted search state; only
// the enrichment stages (coverage, plan builder) attach data afterwards,
// never rewriting what resolution established.
type EndpointScenario struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`

	// Operations is the ordered chain, prerequisites first, target last.
	// The target never appears among its own prerequisites.
	Operations []OperationRef `json:"operations"`

	Produced             []string `json:"produced,omitempty"`
	MissingSemanticTypes []string `json:"missingSemanticTypes,omitempty"`
	Cycle                bool     `json:"cycle,omitempty"`

	// Providers maps each produced semantic type to the operation that
	// produced it first along the chain.
	Providers map[string]string `json:"providers,omitempty"`

	DomainStatesRequired []string `json:"domainStatesRequired,omitempty"`
	DomainStatesProduced []string `json:"domainStatesProduced,omitempty"`

	// Bootstrap provenance: the sequence name when the chain was seeded
	// from a bootstrap, and whether that sequence alone covered every
	// required semantic type.
	BootstrapUsed     string `json:"bootstrapUsed,omitempty"`
	BootstrapComplete bool   `json:"bootstrapComplete,omitempty"`

	// AppliedArtifactRules records artifact rule ids applied by the
	// set-cover selector along the chain, in application order.
	AppliedArtifactRules []string `json:"appliedArtifactRules,omitempty"`

	// Enrichment fields, attached downstream of resolution.
	Variant        *VariantInfo            `json:"variant,omitempty"`
	VariantKey     string                  `json:"variantKey,omitempty"`
	CoverageTags   []string                `json:"coverageTags,omitempty"`
	Bindings       map[string]BindingValue `json:"bindings,omitempty"`
	ResponseFields []CanonicalField        `json:"responseFields,omitempty"`
	RequestPlan    []RequestStep           `json:"requestPlan,omitempty"`
	ExpectedResult *ExpectedResult         `json:"expectedResult,omitempty"`
}

// Unsatisfied reports whether this is the terminal missing-producer record.
func (s *EndpointScenario) Unsatisfied() bool {
	return s.ID == ScenarioUnsatisfiedID
}

// OperationIDs returns the ordered operation ids of the chain.
func (s *EndpointScenario) OperationIDs() []string {
	out := make([]string, len(s.Operations))
	for i, ref := range s.Operations {
		out[i] = ref.OperationID
	}
	return out
}

// Negative variant classes. The empty string marks a positive variant.
const (
	NegativeEmpty           = "empty"
	NegativeMissingRequired = "missingRequired"
	NegativeSchemaViolation = "schemaViolation"
	NegativeUnionAll        = "unionAll"
	NegativeFieldConflict   = "fieldConflict"
)

// VariantInfo records how a coverage variant reshapes the final request.
// The request plan builder reads it when synthesizing the body; resolvers
// never set it.
type VariantInfo struct {
	Negative         string   `json:"negative,omitempty"`
	IncludeOptionals []string `json:"includeOptionals,omitempty"`
	OmitFields       []string `json:"omitFields,omitempty"`
	WrongTypeFields  []string `json:"wrongTypeFields,omitempty"`
	OneOfGroup       string   `json:"oneOfGroup,omitempty"`
	OneOfVariant     string   `json:"oneOfVariant,omitempty"`
	Rich             bool     `json:"rich,omitempty"`
	UnionAllFields   bool     `json:"unionAllFields,omitempty"`
	ConflictFields   []string `json:"conflictFields,omitempty"`
	ArtifactRule     string   `json:"artifactRule,omitempty"`
}

// ScenarioCollection is the resolver's externally visible result for one
// endpoint.
type ScenarioCollection struct {
	Endpoint              string              `json:"endpoint"`
	RequiredSemanticTypes []string            `json:"requiredSemanticTypes"`
	OptionalSemanticTypes []string            `json:"optionalSemanticTypes"`
	Scenarios             []*EndpointScenario `json:"scenarios"`
	Unsatisfied           bool                `json:"unsatisfied"`

	// Truncated is set when a cap (maxScenarios or the post-expansion
	// ceiling) cut the output. Truncation is deterministic: stable sort,
	// then slice.
	Truncated bool `json:"truncated,omitempty"`
}
