package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectErrorMessage(t *testing.T) {
	err := ConnectError{Host: "10.0.0.1", Port: 3306, Detail: "connection refused"}
	assert.Equal(t, "Error connecting to MySQL server at 10.0.0.1:3306: connection refused", err.Error())
}

func TestQueryErrorMessage(t *testing.T) {
	err := QueryError{Detail: "syntax error"}
	assert.Equal(t, "Error executing MySQL query: syntax error", err.Error())
}

func TestClientRejectsQueriesBeforeConnect(t *testing.T) {
	c := New("10.0.0.1", 3306)
	assert.False(t, c.Connected())

	_, err := c.Topology(nil)
	assert.Equal(t, ErrNotConnected, err)

	_, err = c.Primary(nil)
	assert.Equal(t, ErrNotConnected, err)

	_, err = c.Status(nil)
	assert.Equal(t, ErrNotConnected, err)
}

func TestClientCloseWithoutConnectIsNoop(t *testing.T) {
	c := New("10.0.0.1", 3306)
	assert.NoError(t, c.Close())
}
