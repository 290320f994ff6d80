package blockio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lrzlock/internal/crypto"
)

func newSession(t *testing.T, pass string) *crypto.Session {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := crypto.NewSession([]byte(pass), []byte("blocksal"), crypto.Options{EncLoops: 256, Logger: log})
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		blockSize int
		want      []int
	}{
		{"empty", 0, 16, []int{0}},
		{"single short", 5, 16, []int{5}},
		{"exact", 32, 16, []int{16, 16}},
		{"tail", 33, 16, []int{16, 16, 1}},
		{"no limit", 40, 0, []int{40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := content(tt.size)
			chunks := Split(data, tt.blockSize)

			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.want, sizes)
			assert.True(t, bytes.Equal(data, bytes.Join(chunks, nil)), "chunks must rejoin to the input")
		})
	}
}

func TestSplitChunksDoNotAlias(t *testing.T) {
	chunks := Split(content(32), 16)
	chunks[0] = append(chunks[0], 0xff)
	assert.Equal(t, content(32)[16:], chunks[1])
}

func TestSealOpenRecord(t *testing.T) {
	s := newSession(t, "records")

	for _, n := range []int{0, 1, 15, 16, 17, 1000} {
		payload := content(n)
		rec, err := SealRecord(s, crypto.TypeNone, payload, 4)
		require.NoError(t, err)
		assert.Len(t, rec, Overhead+n)
		assert.Equal(t, content(n), payload, "payload must not be modified")

		sealed := clone(rec)
		got, err := OpenRecord(s, rec, crypto.TypeNone, 4, crypto.ModeDecrypt)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.Equal(t, sealed, rec, "record must not be modified")

		h, err := ReadHeader(s, rec, crypto.ModeValidate)
		require.NoError(t, err)
		assert.Equal(t, crypto.Header{Type: crypto.TypeNone, CompressedLen: int64(n), UncompressedLen: int64(n), PrevHead: 4}, h)
	}
}

func TestOpenRecordRejects(t *testing.T) {
	s := newSession(t, "reject")
	rec, err := SealRecord(s, crypto.TypeNone, content(40), NoPrev)
	require.NoError(t, err)

	t.Run("wrong type", func(t *testing.T) {
		_, err := OpenRecord(s, rec, crypto.TypeMeta, NoPrev, crypto.ModeDecrypt)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})

	t.Run("wrong position", func(t *testing.T) {
		_, err := OpenRecord(s, rec, crypto.TypeNone, 0, crypto.ModeDecrypt)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := OpenRecord(s, rec[:len(rec)-1], crypto.TypeNone, NoPrev, crypto.ModeDecrypt)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})

	t.Run("too short", func(t *testing.T) {
		_, err := OpenRecord(s, rec[:Overhead-1], crypto.TypeNone, NoPrev, crypto.ModeDecrypt)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		other := newSession(t, "someone else")
		_, err := OpenRecord(other, rec, crypto.TypeNone, NoPrev, crypto.ModeValidate)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})

	t.Run("tampered header", func(t *testing.T) {
		bad := clone(rec)
		bad[crypto.SaltLen] ^= 0x01
		_, err := OpenRecord(s, bad, crypto.TypeNone, NoPrev, crypto.ModeDecrypt)
		assert.True(t, errors.Is(err, ErrCorruptRecord))
	})
}

func TestEncryptDecryptBlocks(t *testing.T) {
	s := newSession(t, "chain")
	ctx := context.Background()

	for _, workers := range []int{1, 3, 0} {
		data := content(10*1024 + 7)
		chunks := Split(data, 1024)
		require.Len(t, chunks, 11)

		records, err := EncryptBlocks(ctx, s, crypto.TypeNone, chunks, workers)
		require.NoError(t, err)
		require.Len(t, records, 11)

		for i, rec := range records {
			h, err := ReadHeader(s, rec, crypto.ModeValidate)
			require.NoError(t, err)
			assert.Equal(t, int64(i-1), h.PrevHead)
		}

		got, err := DecryptBlocks(ctx, s, crypto.TypeNone, records, crypto.ModeDecrypt, workers)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		got, err = DecryptBlocks(ctx, s, crypto.TypeNone, records, crypto.ModeValidate, workers)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestDecryptBlocksDetectsReorder(t *testing.T) {
	s := newSession(t, "reorder")
	ctx := context.Background()

	records, err := EncryptBlocks(ctx, s, crypto.TypeNone, Split(content(100), 16), 2)
	require.NoError(t, err)
	records[2], records[3] = records[3], records[2]

	_, err = DecryptBlocks(ctx, s, crypto.TypeNone, records, crypto.ModeDecrypt, 2)
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	_, err = DecryptBlocks(ctx, s, crypto.TypeNone, records[:0], crypto.ModeDecrypt, 2)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestBlocksHonourContext(t *testing.T) {
	s := newSession(t, "cancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EncryptBlocks(ctx, s, crypto.TypeNone, Split(content(100), 16), 4)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParallelStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	err := parallel(context.Background(), 50, 4, func(i int) error {
		if i == 10 {
			return boom
		}
		return nil
	})
	assert.True(t, errors.Is(err, boom))

	err = parallel(context.Background(), 50, 4, func(i int) error {
		if i == 7 {
			panic("worker exploded")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker exploded")

	assert.NoError(t, parallel(context.Background(), 0, 4, func(int) error { return boom }))
}
