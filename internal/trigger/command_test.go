package trigger

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	push := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte("run-load-data")) + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "plain", body: "run-get-data", want: "run-get-data"},
		{name: "plain with newline", body: "run-get-data\n", want: "run-get-data"},
		{name: "push envelope", body: push, want: "run-load-data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCommand_Invalid(t *testing.T) {
	for _, body := range []string{
		"",
		"   ",
		`{"message":`,
		`{"subscription":"s"}`,
		`{"message":{"data":"%%%"}}`,
		`{"message":{"data":""}}`,
	} {
		_, err := DecodeCommand([]byte(body))
		assert.Error(t, err, body)
	}
}
