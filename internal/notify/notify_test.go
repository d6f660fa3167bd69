package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"uniid/internal/platform/config"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return out
}

func TestKafka_PublishesKeyedEvent(t *testing.T) {
	producer := &fakeProducer{}
	n := NewKafka(producer, "identity.created")
	n.now = func() time.Time { return fixedNow }

	res := n.Notify(context.Background(), "ada@uni.edu", "STU202600001")

	require.True(t, res.OK())
	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "identity.created", rec.Topic)
	assert.Equal(t, []byte("STU202600001"), rec.Key)

	var event IdentityCreatedEvent
	require.NoError(t, json.Unmarshal(rec.Value, &event))
	assert.Equal(t, "STU202600001", event.IdentityID)
	assert.Equal(t, "ada@uni.edu", event.Recipient)
	assert.Equal(t, fixedNow, event.OccurredAt)
	assert.NotEmpty(t, event.EventID)
}

func TestKafka_ReportsFailure(t *testing.T) {
	n := NewKafka(&fakeProducer{err: errors.New("broker down")}, "identity.created")

	res := n.Notify(context.Background(), "ada@uni.edu", "STU202600001")

	assert.False(t, res.OK())
	assert.ErrorContains(t, res.Err, "broker down")
	assert.Equal(t, "kafka", res.Channel)
}

func TestSMTP_SendsIdentityEmail(t *testing.T) {
	var (
		gotFrom, gotTo string
		gotMsg         []byte
	)
	n := NewSMTP(config.SMTP{Host: "smtp.uni.edu", Port: 465, Username: "noreply@uni.edu"},
		WithSendFunc(func(_ context.Context, _ config.SMTP, from, to string, msg []byte) error {
			gotFrom, gotTo, gotMsg = from, to, msg
			return nil
		}))

	res := n.Notify(context.Background(), "ada@uni.edu", "STU202600001")

	require.True(t, res.OK())
	assert.Equal(t, "noreply@uni.edu", gotFrom, "sender falls back to the username")
	assert.Equal(t, "ada@uni.edu", gotTo)
	assert.Contains(t, string(gotMsg), "Your ID: STU202600001")
}

func TestSMTP_FailuresAreReturnedNotRaised(t *testing.T) {
	n := NewSMTP(config.SMTP{From: "noreply@uni.edu"},
		WithSendFunc(func(context.Context, config.SMTP, string, string, []byte) error {
			return errors.New("535 auth failed")
		}))

	res := n.Notify(context.Background(), "ada@uni.edu", "STU202600001")
	assert.False(t, res.OK())
	assert.ErrorContains(t, res.Err, "535 auth failed")

	res = n.Notify(context.Background(), "not an address", "STU202600001")
	assert.False(t, res.OK(), "invalid recipient never reaches the transport")
}

func TestSMTP_UnconfiguredHost(t *testing.T) {
	res := NewSMTP(config.SMTP{From: "noreply@uni.edu"}).Notify(context.Background(), "ada@uni.edu", "STU202600001")
	assert.ErrorContains(t, res.Err, "smtp host not configured")
}

func TestLog_AlwaysSucceeds(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	res := n.Notify(context.Background(), "ada@uni.edu", "STU202600001")

	assert.True(t, res.OK())
	assert.Contains(t, buf.String(), `"identity_id":"STU202600001"`)
}
