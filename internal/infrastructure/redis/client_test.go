package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvalidationEncoding(t *testing.T) {
	payload, err := encodeInvalidation("01HX", []string{"client:abc", "clients:"})
	require.NoError(t, err)
	require.JSONEq(t, `{"origin":"01HX","patterns":["client:abc","clients:"]}`, payload)

	inv, err := decodeInvalidation(payload)
	require.NoError(t, err)
	require.Equal(t, "01HX", inv.Origin)
	require.Equal(t, []string{"client:abc", "clients:"}, inv.Patterns)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := decodeInvalidation("not json")
	require.Error(t, err)

	_, err = decodeInvalidation(`{"origin":"x","patterns":[]}`)
	require.ErrorContains(t, err, "no patterns")
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "http://not-redis", nil)
	require.ErrorContains(t, err, "invalid redis url")
}
