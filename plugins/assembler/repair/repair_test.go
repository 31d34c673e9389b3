package repair

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmsrc/pkg/contract"
)

func TestAssembleFullChain(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	results := []string{
		"package a;\nimport java.util.List;\n\n\npublic class A {\n    void f() {\n        t(getString(R.string.hi\n",
		"        ));\n        String s = \"open\n    private int x;\n",
		"",
	}
	rep, err := a.Assemble(context.Background(), results)
	require.NoError(t, err)
	assert.Contains(t, rep.Document, "        t(getString(R.string.hi));\n")
	assert.NotContains(t, rep.Document, "\n\n\n")
	require.Len(t, rep.Corrections, 1)
	assert.True(t, strings.HasPrefix(rep.Corrections[0].Text, `String s = "open...`))
	var cats []contract.Category
	for _, w := range rep.Warnings {
		cats = append(cats, w.Category)
	}
	assert.Equal(t, []contract.Category{contract.TruncatedString}, cats)
}

func TestOptionsStrict(t *testing.T) {
	_, err := New([]byte(`{"switch_indent":8,"decl_keywords":["private","final"]}`))
	require.NoError(t, err)
	_, err = New([]byte(`{"unknown":1}`))
	assert.Error(t, err)
	_, err = New([]byte(`{"decl_keywords":[" "]}`))
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestCustomSwitchIndent(t *testing.T) {
	a, err := New([]byte(`{"switch_indent":4}`))
	require.NoError(t, err)
	rep, err := a.Assemble(context.Background(), []string{"switch (k) {\ncase 1:\n}\n"})
	require.NoError(t, err)
	assert.Equal(t, "switch (k) {\n    case 1:\n}\n", rep.Document)
}
