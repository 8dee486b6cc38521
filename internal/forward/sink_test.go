package forward

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	recs   []Record
	err    error
	closed bool
}

func (p *fakePersister) Append(rec Record) error {
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

func (p *fakePersister) Close() error {
	p.closed = true
	return nil
}

type fakeEnqueuer struct {
	recs    []Record
	err     error
	stopped int
}

func (e *fakeEnqueuer) Publish(rec Record) error {
	e.recs = append(e.recs, rec)
	return e.err
}

func (e *fakeEnqueuer) Stop() error {
	e.stopped++
	return nil
}

func TestSinkAssignsSequence(t *testing.T) {
	store := &fakePersister{}
	pub := &fakeEnqueuer{}
	sink := NewSink(store, pub)

	first := sink.Forward("DATA:1,2,3")
	second := sink.Forward("START SWIPE")

	assert.Equal(t, uint64(1), first.Record.Seq)
	assert.Equal(t, uint64(2), second.Record.Seq)
	assert.NoError(t, first.PersistErr)
	assert.NoError(t, first.PublishErr)
	assert.Equal(t, store.recs, pub.recs)
	assert.Equal(t, "DATA:1,2,3", store.recs[0].Line)
}

func TestSinkPublishesWhenPersistFails(t *testing.T) {
	store := &fakePersister{err: fmt.Errorf("disk full")}
	pub := &fakeEnqueuer{}
	sink := NewSink(store, pub)

	res := sink.Forward("DATA:1")
	assert.Error(t, res.PersistErr)
	assert.NoError(t, res.PublishErr)
	require.Len(t, pub.recs, 1)
}

func TestSinkPersistsWhenPublishFails(t *testing.T) {
	store := &fakePersister{}
	pub := &fakeEnqueuer{err: errors.New().New(ErrQueueFull)}
	sink := NewSink(store, pub)

	res := sink.Forward("DATA:1")
	assert.NoError(t, res.PersistErr)
	assert.True(t, errors.HasCode(res.PublishErr, ErrQueueFull))
	require.Len(t, store.recs, 1)
}

func TestSinkCloseOrder(t *testing.T) {
	store := &fakePersister{}
	pub := &fakeEnqueuer{}
	sink := NewSink(store, pub)

	require.NoError(t, sink.StopPublishing())
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.Equal(t, 1, pub.stopped)
	assert.True(t, store.closed)
}

func TestSinkWithRealStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipes.csv")
	store, err := OpenStore(path)
	require.NoError(t, err)

	sink := NewSink(store, &fakeEnqueuer{})
	for i := 0; i < 5; i++ {
		res := sink.Forward(fmt.Sprintf("DATA:%d,%d", i, i*2))
		require.NoError(t, res.PersistErr)
	}
	require.NoError(t, sink.Close())

	rows := readRows(t, path)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"DATA:4", "8"}, rows[4])
}
