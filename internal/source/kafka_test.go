package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession implements sarama.ConsumerGroupSession just enough to drive
// handleMessage in isolation, without a live broker.
type fakeSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (f *fakeSession) Claims() map[string][]int32                                        { return nil }
func (f *fakeSession) MemberID() string                                                  { return "test-member" }
func (f *fakeSession) GenerationID() int32                                               { return 1 }
func (f *fakeSession) MarkOffset(string, int32, int64, string)                           {}
func (f *fakeSession) Commit()                                                           {}
func (f *fakeSession) ResetOffset(string, int32, int64, string)                          {}
func (f *fakeSession) Context() context.Context                                          { return f.ctx }
func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	f.marked = append(f.marked, msg)
}

type fakeIngester struct {
	received []map[string]interface{}
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, rec map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.received = append(f.received, rec)
	return nil
}

func TestHandleMessage_DecodesAndIngestsThenMarks(t *testing.T) {
	ing := &fakeIngester{}
	s := &KafkaSource{ingester: ing}
	sess := &fakeSession{ctx: context.Background()}

	msg := &sarama.ConsumerMessage{Topic: "records", Value: []byte(`{"name":"alice"}`)}
	s.handleMessage(sess, msg)

	require.Len(t, ing.received, 1)
	assert.Equal(t, "alice", ing.received[0]["name"])
	assert.Len(t, sess.marked, 1, "message must be marked committed after successful ingest")
}

func TestHandleMessage_UndecodableMessageIsMarkedAndDropped(t *testing.T) {
	ing := &fakeIngester{}
	s := &KafkaSource{ingester: ing}
	sess := &fakeSession{ctx: context.Background()}

	msg := &sarama.ConsumerMessage{Topic: "records", Value: []byte(`not json`)}
	s.handleMessage(sess, msg)

	assert.Empty(t, ing.received)
	assert.Len(t, sess.marked, 1, "a malformed message must never block the pipeline")
}

func TestHandleMessage_IngestFailureLeavesMessageUnmarked(t *testing.T) {
	ing := &fakeIngester{err: errors.New("backend down")}
	s := &KafkaSource{ingester: ing}
	sess := &fakeSession{ctx: context.Background()}

	msg := &sarama.ConsumerMessage{Topic: "records", Value: []byte(`{"name":"alice"}`)}
	s.handleMessage(sess, msg)

	assert.Empty(t, sess.marked, "message must be redelivered when ingest fails")
}

func TestGetLivenessCheck_HealthyBeforeFirstMessage(t *testing.T) {
	s := &KafkaSource{}
	assert.NoError(t, s.GetLivenessCheck()())
}

func TestGetLivenessCheck_UnhealthyAfterStaleConsumption(t *testing.T) {
	s := &KafkaSource{}
	s.lastConsumed.Store(time.Now().UTC().Add(-10 * time.Minute).Unix())
	assert.Error(t, s.GetLivenessCheck()())
}
