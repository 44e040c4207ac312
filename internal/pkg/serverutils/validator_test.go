package serverutils

import (
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Message string `validate:"required,max=5"`
	Limit   int    `validate:"omitempty,min=1,max=100"`
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name string
		req  sample
		want string
	}{
		{name: "valid", req: sample{Message: "hi", Limit: 10}},
		{name: "missing", req: sample{}, want: "message is required"},
		{name: "too long", req: sample{Message: strings.Repeat("x", 6)}, want: "message is longer than 5 characters"},
		{name: "too many", req: sample{Message: "hi", Limit: 500}, want: "limit is greater than 100"},
		{name: "both", req: sample{Limit: 500}, want: "message is required; limit is greater than 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(&tt.req)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}

			var fe *fiber.Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, fiber.StatusBadRequest, fe.Code)
			assert.Equal(t, tt.want, fe.Message)
		})
	}
}
