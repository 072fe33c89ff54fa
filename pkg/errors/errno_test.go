package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{21, 4, 1, 2104001},
		{21, 12, 3, 2112003},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			assert.Equal(t, tt.expected, MakeCode(tt.service, tt.category, tt.sequence))

			s, c, q := ParseCode(tt.expected)
			assert.Equal(t, tt.service, s)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.sequence, q)
		})
	}
}

func TestQGPTCodesCategories(t *testing.T) {
	assert.Equal(t, CategoryRequest, GetCategory(ErrCorpusInvalid.Code))
	assert.Equal(t, CategoryResource, GetCategory(ErrDatabaseNotFound.Code))
	assert.Equal(t, CategoryConflict, GetCategory(ErrIdentityCollision.Code))
	assert.Equal(t, CategoryDatabase, GetCategory(ErrPartialWrite.Code))
	assert.Equal(t, CategoryConfig, GetCategory(ErrDimensionMismatch.Code))
	assert.Equal(t, http.StatusNotFound, ErrCollectionNotFound.HTTPStatus())
	assert.Equal(t, codes.FailedPrecondition, ErrIdentityTooLong.GRPCStatus())
}

func TestErrnoWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrPartialWrite.WithCause(cause)

	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPartialWrite)
	assert.Nil(t, ErrPartialWrite.Unwrap(), "predefined error must stay untouched")
}

func TestErrnoWithMessagef(t *testing.T) {
	err := ErrPartialWrite.WithMessagef("inserted %d of %d", 2000, 3000)

	assert.Equal(t, "inserted 2000 of 3000", err.MessageEN)
	assert.Equal(t, ErrPartialWrite.Code, err.Code)
	assert.Equal(t, "批量写入中途失败", err.Message("zh"))
}

func TestIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("build corpus: %w", ErrCorpusInvalid.WithMessage("record 3 has no id"))

	assert.True(t, stderrors.Is(wrapped, ErrCorpusInvalid))
	assert.False(t, stderrors.Is(wrapped, ErrTestFileInvalid))
	assert.True(t, IsCode(wrapped, ErrCorpusInvalid.Code))
	assert.Equal(t, ErrCorpusInvalid.Code, GetCode(wrapped))
	assert.Equal(t, -1, GetCode(fmt.Errorf("plain")))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	e := FromError(fmt.Errorf("wrap: %w", ErrStoreFailed))
	assert.Equal(t, ErrStoreFailed.Code, e.Code)

	plain := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
}

func TestRegistry(t *testing.T) {
	e, ok := Lookup(ErrAmbiguousTarget.Code)
	require.True(t, ok)
	assert.Same(t, ErrAmbiguousTarget, e)
	assert.Greater(t, RegistrySize(), 10)

	assert.Panics(t, func() {
		Register(New(ErrCorpusInvalid.Code, http.StatusBadRequest, codes.InvalidArgument, "dup", "重复"))
	})

	_, err := Define(ServiceQGPT, CategoryRequest, 1, "again", "再次")
	assert.Error(t, err)
}

func TestFormatVerbose(t *testing.T) {
	s := fmt.Sprintf("%+v", ErrDatabaseNotFound.WithCause(fmt.Errorf("no such file")))
	assert.Contains(t, s, "HTTP 404")
	assert.Contains(t, s, "caused by: no such file")
}
