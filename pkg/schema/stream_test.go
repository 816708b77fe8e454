package schema

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDeliversInOrder(t *testing.T) {
	reader, writer := Pipe[int](1)

	go func() {
		defer writer.Close()
		for i := 0; i < 5; i++ {
			if closed := writer.Send(i, nil); closed {
				return
			}
		}
	}()

	var got []int
	for {
		v, err := reader.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPipeSendBlocksUntilRead(t *testing.T) {
	reader, writer := Pipe[string](0)

	sent := make(chan bool, 1)
	go func() {
		sent <- writer.Send("snapshot", nil)
	}()

	select {
	case <-sent:
		t.Fatal("send on unbuffered pipe returned before a reader received")
	case <-time.After(50 * time.Millisecond):
	}

	v, err := reader.Recv()
	require.NoError(t, err)
	assert.Equal(t, "snapshot", v)
	assert.False(t, <-sent)
}

func TestPipeReaderCloseUnblocksWriter(t *testing.T) {
	reader, writer := Pipe[int](0)

	var wg sync.WaitGroup
	wg.Add(1)
	var closed bool
	go func() {
		defer wg.Done()
		closed = writer.Send(1, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, reader.Close())
	wg.Wait()

	assert.True(t, closed)
	_, err := reader.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestPipeCarriesErrors(t *testing.T) {
	reader, writer := Pipe[int](2)
	boom := errors.New("boom")
	writer.Send(0, boom)
	writer.Close()

	_, err := reader.Recv()
	assert.Equal(t, boom, err)
	_, err = reader.Recv()
	assert.Equal(t, io.EOF, err)
	assert.True(t, writer.Send(1, nil), "send after close reports closed")
}

func TestSourceKeyAndMetadata(t *testing.T) {
	src := SourceFromMetadata(map[string]interface{}{
		"source_name":  "Fund Factsheet",
		"source_file":  "fund_x.pdf",
		"last_updated": 20240131,
		"unrelated":    "ignored",
	})
	assert.Equal(t, "Fund Factsheet", src.SourceName)
	assert.Equal(t, "20240131", src.LastUpdated)
	assert.Equal(t, "fund_x.pdf", src.Key())

	src.SourceURL = "https://example.com/x"
	assert.Equal(t, "https://example.com/x", src.Key())
	assert.True(t, Source{}.IsEmpty())
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	score := 0.7
	doc := &Document{
		Content:     "nav",
		MetaData:    map[string]interface{}{"nav": 10.5},
		RerankScore: &score,
		Sources:     []Source{{SourceName: "a"}},
	}
	cp := doc.Clone()
	cp.MetaData["nav"] = 11.0
	*cp.RerankScore = 0.1
	cp.Sources[0].SourceName = "b"

	assert.Equal(t, 10.5, doc.MetaData["nav"])
	assert.Equal(t, 0.7, *doc.RerankScore)
	assert.Equal(t, "a", doc.Sources[0].SourceName)
	assert.Nil(t, (*Document)(nil).Clone())
}
