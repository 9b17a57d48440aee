package aws

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maksha19/message-be-v2/engine"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind engine.ErrorKind
	}{
		{
			name: "instance not found",
			err:  &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "gone"},
			kind: engine.ErrKindNotFound,
		},
		{
			name: "unauthorized operation",
			err:  &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "denied"},
			kind: engine.ErrKindUnauthorized,
		},
		{
			name: "auth failure",
			err:  &smithy.GenericAPIError{Code: "AuthFailure", Message: "denied"},
			kind: engine.ErrKindUnauthorized,
		},
		{
			name: "access denied",
			err:  &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"},
			kind: engine.ErrKindUnauthorized,
		},
		{
			name: "throttling",
			err:  &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "slow down"},
			kind: engine.ErrKindTransient,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("connection reset"),
			kind: engine.ErrKindTransient,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapError("test", tc.err)
			assert.Equal(t, tc.kind, engine.KindOf(mapped))

			var typed *engine.Error
			assert.True(t, errors.As(mapped, &typed))
			assert.ErrorIs(t, mapped, tc.err)
		})
	}
}
