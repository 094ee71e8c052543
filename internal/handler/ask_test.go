package handler

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noteqa/ragcore/internal/types"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/ask", nil)
	return c, w
}

func TestTenantIDFromContext_MissingReturnsFalse(t *testing.T) {
	c, _ := newTestContext()
	_, ok := tenantIDFromContext(c)
	assert.False(t, ok)
}

func TestTenantIDFromContext_ReturnsSetValue(t *testing.T) {
	c, _ := newTestContext()
	c.Set(types.TenantIDContextKey.String(), uint64(42))

	id, ok := tenantIDFromContext(c)
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)
}

func TestWriteRAGError_MapsErrorKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		kind types.ErrorKind
		want int
	}{
		{types.ErrorKindInput, 400},
		{types.ErrorKindRateLimited, 429},
		{types.ErrorKindTimeout, 504},
		{types.ErrorKindConfiguration, 503},
		{types.ErrorKindTransient, 502},
		{types.ErrorKindInternal, 500},
	}
	for _, c := range cases {
		ctx, w := newTestContext()
		writeRAGError(ctx, types.NewRAGError(c.kind, "boom"))
		assert.Equal(t, c.want, w.Code, "kind %v", c.kind)
	}
}

func TestWriteRAGError_UnclassifiedErrorReturns500(t *testing.T) {
	ctx, w := newTestContext()
	writeRAGError(ctx, errors.New("unexpected failure"))
	assert.Equal(t, 500, w.Code)
}

func TestWriteRAGError_RateLimitedSetsRetryAfterHeader(t *testing.T) {
	ctx, w := newTestContext()
	err := types.NewRAGError(types.ErrorKindRateLimited, "slow down").WithRetryAfter(30 * time.Second)
	writeRAGError(ctx, err)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
