package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ipv4 keeps /24", in: "203.0.113.77", want: "203.0.113.0/24"},
		{name: "mapped ipv4 is unmapped", in: "::ffff:203.0.113.77", want: "203.0.113.0/24"},
		{name: "ipv6 keeps /48", in: "2001:db8:abcd:12::1", want: "2001:db8:abcd::/48"},
		{name: "non ip passes through", in: "unknown", want: "unknown"},
		{name: "empty passes through", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.in))
		})
	}
}
