package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundBuffer_FIFO(t *testing.T) {
	buf := NewOutboundBuffer(4)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, buf.Push([]byte(s)))
	}
	assert.Equal(t, 3, buf.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, err := buf.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestOutboundBuffer_FullIsRejected(t *testing.T) {
	buf := NewOutboundBuffer(2)

	require.NoError(t, buf.Push([]byte("1")))
	require.NoError(t, buf.Push([]byte("2")))
	assert.ErrorIs(t, buf.Push([]byte("3")), ErrBufferFull)
	assert.Equal(t, 2, buf.Len())
}

func TestOutboundBuffer_FailDrainsThenErrors(t *testing.T) {
	buf := NewOutboundBuffer(4)
	boom := errors.New("boom")
	ctx := context.Background()

	require.NoError(t, buf.Push([]byte("queued")))
	buf.Fail(boom)
	buf.Fail(errors.New("second"))

	assert.ErrorIs(t, buf.Push([]byte("late")), ErrBufferClosed)

	got, err := buf.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", string(got))

	_, err = buf.Next(ctx)
	assert.Equal(t, boom, err)
	assert.Equal(t, boom, buf.Err())
}

func TestOutboundBuffer_CloseWakesConsumer(t *testing.T) {
	buf := NewOutboundBuffer(4)

	errCh := make(chan error, 1)
	go func() {
		_, err := buf.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	buf.Close()
	buf.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrBufferClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestOutboundBuffer_NextHonoursContext(t *testing.T) {
	buf := NewOutboundBuffer(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := buf.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOutboundBuffer_PushWakesBlockedConsumer(t *testing.T) {
	buf := NewOutboundBuffer(1)

	got := make(chan string, 1)
	go func() {
		data, err := buf.Next(context.Background())
		if err == nil {
			got <- string(data)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, buf.Push([]byte("wake")))

	select {
	case s := <-got:
		assert.Equal(t, "wake", s)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}
