package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoClient_ReturnsTrimmedPacketAsCompletion(t *testing.T) {
	c := NewEchoClient("test-model-full", "1.2.3")
	res, err := c.Run(context.Background(), "prompt", "  packet content  \n")
	require.NoError(t, err)
	assert.Equal(t, "packet content", res.Completion)
	assert.Equal(t, 0, res.ExitCode)
}

func TestEchoClient_HonorsContextCancellation(t *testing.T) {
	c := NewEchoClient("m", "v")
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := c.Run(ctx, "prompt", "packet")
	assert.Error(t, err)
}
