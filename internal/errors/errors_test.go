package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesComponentAndCategory(t *testing.T) {
	t.Parallel()

	base := NewStd("connection reset")
	err := New(base).
		Component("provider").
		Category(CategoryNetwork).
		Context("operation", "catalog_search").
		Build()

	var enhanced *EnhancedError
	require.True(t, As(err, &enhanced))
	assert.Equal(t, "provider", enhanced.Component)
	assert.Equal(t, CategoryNetwork, enhanced.Category)
	assert.Equal(t, "catalog_search", enhanced.Context["operation"])
	assert.ErrorIs(t, err, base)
}

func TestBuildDefaultsToGenericCategory(t *testing.T) {
	t.Parallel()

	err := Newf("something broke").Build()

	var enhanced *EnhancedError
	require.True(t, As(err, &enhanced))
	assert.Equal(t, CategoryGeneric, enhanced.Category)
}

func TestIsCategoryWalksWrappedChain(t *testing.T) {
	t.Parallel()

	inner := Newf("record missing").
		Component("datastore").
		Category(CategoryNotFound).
		Build()
	outer := fmt.Errorf("loading zone: %w", inner)

	assert.True(t, IsCategory(outer, CategoryNotFound))
	assert.False(t, IsCategory(outer, CategoryNetwork))
	assert.True(t, IsNotFound(outer))
	assert.False(t, IsNotFound(Newf("other").Build()))
}

func TestJoinPreservesSentinels(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("no fresher imagery")
	detail := Newf("acquisition 2026-08-20 not newer").Build()

	joined := New(Join(sentinel, detail)).
		Component("imagecache").
		Category(CategoryImageCache).
		Build()

	assert.ErrorIs(t, joined, sentinel)
	assert.True(t, IsCategory(joined, CategoryImageCache))
}
