package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urukhq/whisperd/internal/core/transcript"
)

type fakeEngine struct{}

func (fakeEngine) Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error) {
	return &transcript.Result{}, nil
}

func TestRegistry_EngineInitOnce(t *testing.T) {
	var calls int32
	reg := NewRegistry(Factories{
		Engine: func() (Engine, error) {
			atomic.AddInt32(&calls, 1)
			return fakeEngine{}, nil
		},
	}, false, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng, err := reg.Engine()
			assert.NoError(t, err)
			assert.NotNil(t, eng)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRegistry_EngineFactoryError(t *testing.T) {
	boom := errors.New("model load failed")
	reg := NewRegistry(Factories{
		Engine: func() (Engine, error) { return nil, boom },
	}, false, false)

	_, err := reg.Engine()
	require.ErrorIs(t, err, boom)

	// 失敗も一度だけ評価され、以後も同じエラーが返る
	_, err = reg.Engine()
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_EnhancementFlags(t *testing.T) {
	t.Run("disabled without factory", func(t *testing.T) {
		reg := NewRegistry(Factories{}, true, true)
		assert.False(t, reg.AlignmentEnabled())
		assert.False(t, reg.DiarizationEnabled())

		_, err := reg.Aligner()
		assert.ErrorIs(t, err, ErrNotConfigured)
		_, err = reg.Diarizer()
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("disabled by config", func(t *testing.T) {
		reg := NewRegistry(Factories{
			Aligner:  func() (Aligner, error) { return nil, nil },
			Diarizer: func() (Diarizer, error) { return nil, nil },
		}, false, false)
		assert.False(t, reg.AlignmentEnabled())
		assert.False(t, reg.DiarizationEnabled())
	})
}
