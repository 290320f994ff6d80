package blockio

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/illarion/lrzlock/internal/crypto"
)

// minParallel is the block count below which work stays on the caller's
// goroutine.
const minParallel = 4

// Split cuts data into blockSize pieces. Empty data gives a single empty
// block so every file has at least one record.
func Split(data []byte, blockSize int) [][]byte {
	if blockSize <= 0 {
		blockSize = len(data)
	}
	if len(data) == 0 {
		return [][]byte{data[:0:0]}
	}
	chunks := make([][]byte, 0, (len(data)+blockSize-1)/blockSize)
	for off := 0; off < len(data); off += blockSize {
		end := min(off+blockSize, len(data))
		chunks = append(chunks, data[off:end:end])
	}
	return chunks
}

// EncryptBlocks seals each chunk as one record of a chain.
func EncryptBlocks(ctx context.Context, s *crypto.Session, typ byte, chunks [][]byte, workers int) ([][]byte, error) {
	records := make([][]byte, len(chunks))
	err := parallel(ctx, len(chunks), workers, func(i int) error {
		rec, err := SealRecord(s, typ, chunks[i], int64(i)+NoPrev)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		records[i] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DecryptBlocks opens a chain of records and returns the joined payload.
// In ModeValidate the payload is still returned so the caller can compare it.
func DecryptBlocks(ctx context.Context, s *crypto.Session, typ byte, records [][]byte, mode crypto.Mode, workers int) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrCorruptRecord)
	}

	parts := make([][]byte, len(records))
	err := parallel(ctx, len(records), workers, func(i int) error {
		payload, err := OpenRecord(s, records[i], typ, int64(i)+NoPrev, mode)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		parts[i] = payload
		return nil
	})

	defer func() {
		for _, p := range parts {
			crypto.Wipe(p)
		}
	}()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// parallel runs fn for every index in [0, n) on up to workers goroutines and
// returns the first error. Remaining jobs are skipped once one fails or ctx
// is done.
func parallel(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	if n < minParallel || workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	jobs := make(chan int, n)
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					select {
					case errs <- fmt.Errorf("panic in block worker: %v", r):
					default:
					}
					cancel()
				}
			}()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := fn(i); err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					return
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	return ctx.Err()
}
