// Package testutil provides shared fixtures for tests across packages.
package testutil

import "github.com/opweave/opweave/internal/ir"

// OrdersGraph builds a small but realistic commerce graph: a customer must
// exist before an order can be created, and reading an order needs both.
// Several packages use it so that golden snapshots and behavioral tests
// exercise the same shape of input.
func OrdersGraph() *ir.OperationGraph {
	return ir.NewOperationGraph([]*ir.OperationNode{
		{
			ID:              "createCustomer",
			Method:          "POST",
			Path:            "/customers",
			Produces:        []string{"Customer"},
			PrimaryProduces: []string{"Customer"},
		},
		{
			ID:              "createOrder",
			Method:          "POST",
			Path:            "/orders",
			Requires:        ir.Requires{Required: []string{"Customer"}},
			Produces:        []string{"Order"},
			PrimaryProduces: []string{"Order"},
		},
		{
			ID:     "getOrder",
			Method: "GET",
			Path:   "/orders/{orderId}",
			Requires: ir.Requires{
				Required: []string{"Order", "Customer"},
				Optional: []string{"Invoice"},
			},
		},
	}, nil, nil)
}
