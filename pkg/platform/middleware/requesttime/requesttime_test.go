package requesttime

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gatekeeper/pkg/requestcontext"
	"gatekeeper/pkg/testutil"
)

func TestMiddlewarePinsRequestTime(t *testing.T) {
	var first, second time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(2 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	before := time.Now()
	testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/"))

	assert.Equal(t, first, second, "every read within a request sees the same instant")
	assert.False(t, first.Before(before))
}
