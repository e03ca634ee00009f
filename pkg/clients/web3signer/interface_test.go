package web3signer

import (
	"testing"

	"github.com/Layr-Labs/vault-signer-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// Test_ClientImplementsInterface verifies that Client implements IWeb3Signer
func Test_ClientImplementsInterface(t *testing.T) {
	logger := zaptest.NewLogger(t)

	client, err := NewClient(DefaultConfig(), logger)
	assert.NoError(t, err)
	assert.NotNil(t, client)

	var signer IWeb3Signer = client
	assert.NotNil(t, signer)
}

// Test_NewWeb3SignerClientFromRemoteSignerConfigReturnsInterface verifies the config-based constructor
func Test_NewWeb3SignerClientFromRemoteSignerConfigReturnsInterface(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var signer IWeb3Signer
	var err error

	signer, err = NewWeb3SignerClientFromRemoteSignerConfig(nil, logger)
	assert.NoError(t, err)
	assert.NotNil(t, signer)

	signer, err = NewWeb3SignerClientFromRemoteSignerConfig(&config.RemoteSignerConfig{Url: "http://signer:9000"}, logger)
	assert.NoError(t, err)
	assert.NotNil(t, signer)
}

func Test_NewClientRejectsBadTLS(t *testing.T) {
	_, err := NewClient(NewConfigWithTLS("https://signer:9000", "not a cert", "", ""), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "CA certificate")

	_, err = NewClient(&Config{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "base URL cannot be empty")
}
