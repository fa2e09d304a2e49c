package notification

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	drained  bool
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSNotifier_PublishesDecodableEvents(t *testing.T) {
	log, _ := test.NewNullLogger()
	conn := &fakeConn{}
	n := newNATSNotifier(conn, "etc.extract.progress", log)

	event := model.ProgressEvent{
		Index:     3,
		Total:     10,
		Path:      "data/flows/10.2.10.130_48239_216.58.223.74_443.pcap",
		Label:     "Google",
		Status:    model.StatusProcessed,
		Rows:      42,
		Timestamp: time.Date(2019, 5, 20, 12, 0, 0, 500, time.UTC),
	}
	require.NoError(t, n.Notify(event))
	require.NoError(t, n.Close())

	require.Len(t, conn.payloads, 1)
	assert.Equal(t, "etc.extract.progress", conn.subjects[0])
	assert.True(t, conn.drained)

	got, err := Decode(conn.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, event, got)
}

func TestNATSNotifier_PublishError(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := newNATSNotifier(&fakeConn{err: errors.New("connection closed")}, "s", log)

	assert.Error(t, n.Notify(model.ProgressEvent{Status: model.StatusSkipped}))
}

func TestNew_DisabledIsNop(t *testing.T) {
	log, _ := test.NewNullLogger()

	n, err := New(config.NATSConfig{Enabled: false}, log)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.Notify(model.ProgressEvent{}))
	assert.NoError(t, n.Close())
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
