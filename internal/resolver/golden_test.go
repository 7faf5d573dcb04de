package resolver

import (
	"testing"

	"github.com/opweave/opweave/internal/testutil"
)

// The golden snapshot pins the full serialized collection: chain order,
// provider attribution, and the sorted semantic type lists. Any change to
// resolution ordering shows up as a diff here before it shows up downstream.
func TestResolve_GoldenOrderChain(t *testing.T) {
	c := Resolve(testutil.OrdersGraph(), "getOrder", Options{})

	testutil.AssertGolden(t, "resolve_order_chain", c)
}
