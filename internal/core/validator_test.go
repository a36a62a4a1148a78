package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

type sampleRequest struct {
	Title    string `validate:"required"`
	Parish   string `validate:"omitempty,parish"`
	LawnSize string `validate:"omitempty,lawn_size"`
	Rating   int    `validate:"omitempty,min=1,max=5"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator()

	t.Run("valid request", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{
			Title:    "Front lawn",
			Parish:   "St. Andrew",
			LawnSize: "medium",
			Rating:   4,
		})
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
		assert.Contains(t, appErr.Details, "Title")
	})

	t.Run("unknown parish", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{Title: "x", Parish: "Narnia"})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationInvalidParish, appErr.Code)
	})

	t.Run("unknown lawn size", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{Title: "x", LawnSize: "acreage"})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationInvalidSize, appErr.Code)
	})

	t.Run("all parishes accepted", func(t *testing.T) {
		for _, p := range types.AllParishes {
			err := v.ValidateStruct(sampleRequest{Title: "x", Parish: string(p)})
			assert.NoError(t, err, "parish %s", p)
		}
	})

	t.Run("constraint without a domain code uses the fallback", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{Title: "x", Rating: 9})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errCodeValidationFailed, appErr.Code)
	})

	t.Run("every violation is listed in the details", func(t *testing.T) {
		err := v.ValidateStruct(sampleRequest{Parish: "Narnia", LawnSize: "acreage"})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Len(t, appErr.Details, 3)
	})
}
