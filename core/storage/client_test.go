package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"localhost:9000":            "localhost:9000",
		"http://localhost:9000":     "localhost:9000",
		"https://s3.amazonaws.com/": "s3.amazonaws.com",
		"minio.internal:9000/":      "minio.internal:9000",
	}
	for in, want := range cases {
		assert.Equal(t, want, hostOf(in), in)
	}
}

func TestConfig_Timeout(t *testing.T) {
	assert.Equal(t, defaultTimeout, Config{}.Timeout())
	assert.Equal(t, defaultTimeout, Config{TimeoutSeconds: -1}.Timeout())
	assert.Equal(t, 5*time.Second, Config{TimeoutSeconds: 5}.Timeout())
}

func TestNewClient_SchemedEndpoint(t *testing.T) {
	c, err := NewClient(Config{
		Endpoint:       "https://s3.amazonaws.com/",
		AccessKey:      "key",
		SecretKey:      "secret",
		UseSSL:         true,
		Region:         "us-east-1",
		TimeoutSeconds: 2,
	})
	require.NoError(t, err)

	mc, ok := c.(*minioClient)
	require.True(t, ok)
	assert.Equal(t, "s3.amazonaws.com", mc.EndpointURL().Host)
	assert.Equal(t, "https", mc.EndpointURL().Scheme)
}

func TestNewTransport_AppliesTimeout(t *testing.T) {
	tr := newTransport(3 * time.Second)
	assert.Equal(t, 3*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 3*time.Second, tr.TLSHandshakeTimeout)
}
