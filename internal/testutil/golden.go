package testutil

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares v, serialized as indented JSON, against the golden
// file testdata/{name}.golden in the calling package.
//
// To regenerate golden files, run the package tests with -update.
func AssertGolden(t *testing.T, name string, v any) {
	t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden payload: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t)
	g.Assert(t, name, data)
}
