package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
)

type fixture struct {
	hub   *hub.Hub
	repo  *fakeRepo
	cache *flakyCache
	pub   *fakePublisher
	svc   ChatService
}

func newFixture(t *testing.T, retention int) *fixture {
	t.Helper()
	f := &fixture{
		hub:   hub.NewHub(hub.NewRegistry()),
		repo:  &fakeRepo{},
		cache: newFlakyCache(),
		pub:   &fakePublisher{},
	}
	f.svc = NewChatService(f.hub, f.repo, f.cache, f.pub, Options{Retention: retention})
	return f
}

func (f *fixture) session(t *testing.T, id string) *hub.Session {
	t.Helper()
	s := hub.NewSession(id, "", 256)
	require.NoError(t, f.hub.Register(s))
	return s
}

func (f *fixture) save(t *testing.T, roomID string, n int) {
	t.Helper()
	base := time.Now().UTC()
	for i := 0; i < n; i++ {
		wire := &domain.WireMessage{Type: domain.MsgTypeChat, RoomID: roomID, Sender: "bob", Message: fmt.Sprintf("m%d", i)}
		chat := domain.NewChatMessage(wire, base.Add(time.Duration(i)*time.Microsecond))
		// Cache failures are tolerated; the store must succeed
		err := f.svc.Save(context.Background(), chat)
		require.False(t, errors.Is(err, domain.ErrStorage), "store write failed: %v", err)
	}
}

func drain(s *hub.Session) []domain.WireMessage {
	var out []domain.WireMessage
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for {
		data, err := s.Outbound.Next(ctx)
		if err != nil {
			return out
		}
		var msg domain.WireMessage
		if json.Unmarshal(data, &msg) == nil {
			out = append(out, msg)
		}
	}
}

func contents(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestHandleMessage_EnterJoinsAndReplaysHistory(t *testing.T) {
	f := newFixture(t, 100)
	f.save(t, "r1", 3)
	s := f.session(t, "s1")

	err := f.svc.HandleMessage(context.Background(), s, []byte(`{"type":"ENTER","roomId":"r1","sender":"alice"}`))
	require.NoError(t, err)

	assert.True(t, f.hub.Registry().IsSessionInRoom("r1", s))
	assert.Equal(t, hub.StateJoined, s.State())

	history := drain(s)
	require.Len(t, history, 3)
	for _, h := range history {
		assert.Equal(t, domain.MsgTypeHistory, h.Type)
	}
	assert.Equal(t, []string{"m2", "m1", "m0"}, []string{history[0].Message, history[1].Message, history[2].Message})

	// A second ENTER for the same room does not replay again
	require.NoError(t, f.svc.HandleMessage(context.Background(), s, []byte(`{"type":"ENTER","roomId":"r1","sender":"alice"}`)))
	assert.Empty(t, drain(s))
}

func TestHandleMessage_ChatPersistsThenPublishes(t *testing.T) {
	f := newFixture(t, 100)
	s := f.session(t, "s1")

	err := f.svc.HandleMessage(context.Background(), s, []byte(`{"type":"CHAT","roomId":"r1","sender":"alice","message":"hello"}`))
	require.NoError(t, err)

	rows, _ := f.repo.FindByRoom(context.Background(), "r1")
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0].Message)

	sent := f.pub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MsgTypeChat, sent[0].Type)
	assert.False(t, sent[0].Timestamp.IsZero())

	entries, _ := f.cache.ReadAll(context.Background(), "r1")
	assert.Len(t, entries, 1)
}

func TestHandleMessage_StorageFailureSkipsPublish(t *testing.T) {
	f := newFixture(t, 100)
	f.repo.failWrite = true
	s := f.session(t, "s1")

	err := f.svc.HandleMessage(context.Background(), s, []byte(`{"type":"CHAT","roomId":"r1","sender":"alice","message":"lost"}`))
	require.NoError(t, err)
	assert.Empty(t, f.pub.Sent())
}

func TestHandleMessage_CacheFailureStillPublishes(t *testing.T) {
	f := newFixture(t, 100)
	f.cache.down.Store(true)
	s := f.session(t, "s1")

	err := f.svc.HandleMessage(context.Background(), s, []byte(`{"type":"CHAT","roomId":"r1","sender":"alice","message":"kept"}`))
	require.NoError(t, err)
	assert.Len(t, f.pub.Sent(), 1)

	count, _ := f.repo.CountByRoom(context.Background(), "r1")
	assert.Equal(t, int64(1), count)
}

func TestHandleMessage_ProtocolError(t *testing.T) {
	f := newFixture(t, 100)
	s := f.session(t, "s1")

	err := f.svc.HandleMessage(context.Background(), s, []byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrProtocol)

	count, _ := f.repo.CountByRoom(context.Background(), "r1")
	assert.Zero(t, count)
	assert.Empty(t, f.pub.Sent())
}

func TestSave_RetentionBoundsCache(t *testing.T) {
	f := newFixture(t, 5)
	f.save(t, "r1", 12)

	entries, err := f.cache.ReadAll(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	first, err := domain.DecodeChatMessage(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "m11", first.Message)
}

func TestGetMessages_Idempotent(t *testing.T) {
	f := newFixture(t, 10)
	f.save(t, "r1", 4)
	ctx := context.Background()

	first, err := f.svc.GetMessages(ctx, "r1")
	require.NoError(t, err)
	second, err := f.svc.GetMessages(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, contents(first), contents(second))
	assert.Equal(t, []string{"m3", "m2", "m1", "m0"}, contents(first))
}

func TestGetMessages_ReadRepairWhenStoreHasMore(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	// The cache misses writes while it is down
	f.cache.down.Store(true)
	f.save(t, "r1", 8)
	f.cache.down.Store(false)
	require.NoError(t, f.cache.PushFront(ctx, "r1", mustEncode(t, "r1", "stale")))

	msgs, err := f.svc.GetMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m7", "m6", "m5", "m4", "m3"}, contents(msgs))

	entries, err := f.cache.ReadAll(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestGetMessages_EmptyCacheRebuilds(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.save(t, "r1", 3)
	require.NoError(t, f.cache.DeleteAll(ctx, "r1"))

	msgs, err := f.svc.GetMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	entries, _ := f.cache.ReadAll(ctx, "r1")
	assert.Len(t, entries, 3)
}

func TestGetMessages_CacheDownReadsStore(t *testing.T) {
	f := newFixture(t, 10)
	f.save(t, "r1", 2)
	f.cache.down.Store(true)

	msgs, err := f.svc.GetMessages(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m0"}, contents(msgs))
}

func TestGetMessages_StoreCountFailureServesCache(t *testing.T) {
	f := newFixture(t, 10)
	f.save(t, "r1", 2)
	f.repo.failRead = true

	msgs, err := f.svc.GetMessages(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestGetMessages_ConcurrentCallsAgree(t *testing.T) {
	f := newFixture(t, 10)
	f.save(t, "r1", 6)
	require.NoError(t, f.cache.DeleteAll(context.Background(), "r1"))

	var wg sync.WaitGroup
	results := make([][]string, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msgs, err := f.svc.GetMessages(context.Background(), "r1")
			if err == nil {
				results[i] = contents(msgs)
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, []string{"m5", "m4", "m3", "m2", "m1", "m0"}, r)
	}
	entries, _ := f.cache.ReadAll(context.Background(), "r1")
	assert.Len(t, entries, 6)
}

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newMonotonicClock(func() time.Time { return fixed })

	a := clock.Next()
	b := clock.Next()
	c := clock.Next()

	assert.True(t, b.After(a))
	assert.True(t, c.After(b))
	assert.Equal(t, clockStep, b.Sub(a))
}

func mustEncode(t *testing.T, roomID, message string) []byte {
	t.Helper()
	data, err := (&domain.ChatMessage{RoomID: roomID, Sender: "x", Message: message}).Encode()
	require.NoError(t, err)
	return data
}

func TestGetMessages_CancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := newBlockingRepo()
	for i := 0; i < 3; i++ {
		wire := &domain.WireMessage{Type: domain.MsgTypeChat, RoomID: "r1", Sender: "bob", Message: fmt.Sprintf("m%d", i)}
		_, err := repo.Insert(context.Background(), domain.NewChatMessage(wire, time.Now().Add(time.Duration(i)*time.Microsecond)))
		require.NoError(t, err)
	}
	svc := NewChatService(hub.NewHub(hub.NewRegistry()), repo, newFlakyCache(), &fakePublisher{}, Options{Retention: 10})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.GetMessages(ctxA, "r1")
		errA <- err
	}()

	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		t.Fatal("store read never started")
	}

	type result struct {
		msgs []domain.ChatMessage
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		msgs, err := svc.GetMessages(context.Background(), "r1")
		resB <- result{msgs, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(repo.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, []string{"m2", "m1", "m0"}, contents(r.msgs))
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), repo.finds.Load())
}

func TestGetMessages_FullCacheServedWithoutRepair(t *testing.T) {
	f := newFixture(t, 2)
	f.save(t, "r1", 2)

	// A row the cache never saw; the cache is full so it is not behind
	wire := &domain.WireMessage{Type: domain.MsgTypeChat, RoomID: "r1", Sender: "bob", Message: "unseen"}
	_, err := f.repo.Insert(context.Background(), domain.NewChatMessage(wire, time.Now().Add(time.Second)))
	require.NoError(t, err)

	msgs, err := f.svc.GetMessages(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m0"}, contents(msgs))
	assert.Zero(t, f.repo.finds.Load())
}
