package validate

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title    string `validate:"required,max=10"`
	Severity string `validate:"omitempty,oneof=low high"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Title: "Flood"}))

	err := Struct(sample{Severity: "extreme"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Contains(t, err.Error(), "field 'Title' failed 'required'")
	assert.Contains(t, err.Error(), "field 'Severity' failed 'oneof'")
}

func TestStruct_NonStruct(t *testing.T) {
	err := Struct("not a struct")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrValidation))
}
