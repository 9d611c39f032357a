package blockchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTimestamp = int64(1700000000000)

func TestCalculateHash(t *testing.T) {
	h := CalculateHash("0", testTimestamp, 0, []byte("genesis"))
	require.Equal(t, "f7137fa643ce96198c09f2a7ea7120d808db9075c39638bedc12590543cd2092", h)
	require.Len(t, h, HashHexLen)

	d := NewGenesisDraft([]byte("genesis"), testTimestamp, 0)
	require.Equal(t, h, d.CalculateHash())
	require.Equal(t, d.CalculateHash(), d.CalculateHash())
}

func TestCalculateHashFieldsMatter(t *testing.T) {
	base := CalculateHash("0", testTimestamp, 7, []byte("payload"))
	require.NotEqual(t, base, CalculateHash("1", testTimestamp, 7, []byte("payload")))
	require.NotEqual(t, base, CalculateHash("0", testTimestamp+1, 7, []byte("payload")))
	require.NotEqual(t, base, CalculateHash("0", testTimestamp, 8, []byte("payload")))
	require.NotEqual(t, base, CalculateHash("0", testTimestamp, 7, []byte("payloaD")))
}

func TestDraftCopiesPayload(t *testing.T) {
	payload := []byte("genesis")
	d := NewGenesisDraft(payload, testTimestamp, 0)
	payload[0] = 'G'
	require.Equal(t, []byte("genesis"), d.Payload())

	b, err := d.Mine(context.Background(), 1)
	require.NoError(t, err)
	p := b.Payload()
	p[0] = 'G'
	require.Equal(t, []byte("genesis"), b.Payload())
	require.Equal(t, b.Hash(), b.CalculateHash())
}

func TestDraftSetters(t *testing.T) {
	d := NewDraft(nil, "", 0, 0)
	d.SetPrevHash("0")
	d.SetTimestamp(testTimestamp)
	d.SetNonce(0)
	d.SetPayload([]byte("genesis"))
	d.SetHash("placeholder")
	require.Equal(t, "placeholder", d.Hash())
	require.Equal(t, "f7137fa643ce96198c09f2a7ea7120d808db9075c39638bedc12590543cd2092", d.CalculateHash())
}

func TestRecordRoundTrip(t *testing.T) {
	b, err := NewGenesisDraft([]byte("genesis"), testTimestamp, 0).Mine(context.Background(), 2)
	require.NoError(t, err)

	r := b.Record()
	require.Equal(t, b.Hash(), r.Hash)
	require.Equal(t, uint64(484), r.Nonce)

	c := FromRecord(r)
	require.Equal(t, b.Hash(), c.Hash())
	require.Equal(t, b.CalculateHash(), c.CalculateHash())
	require.Contains(t, c.String(), "Nonce: 484")
}
