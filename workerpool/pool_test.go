package workerpool

import (
	"testing"

	"github.com/intuitionamiga/sonora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	fill    float32
	audible bool
	panics  bool
}

func (f *fakeProcessor) ProcessBlock(output []float32, channels, sampleRate int, t sonora.SourceTime) (bool, error) {
	if f.panics {
		panic("fake processor failure")
	}
	for i := range output {
		output[i] = f.fill
	}
	return f.audible, nil
}

func TestBatcherGreedyPacking(t *testing.T) {
	b := NewBatcher(2, 8)
	b.Update([]Weighted{
		{Index: 0, Weight: 5},
		{Index: 1, Weight: 4},
		{Index: 2, Weight: 3},
		{Index: 3, Weight: 1},
	})
	bins := b.Bins()
	require.Len(t, bins, 2)
	total := bins[0].TotalWeight + bins[1].TotalWeight
	assert.Equal(t, 13.0, total)
	// Greedy LPT: heaviest (5) and second (4) land in different bins first,
	// keeping the spread tight.
	assert.LessOrEqual(t, absDiff(bins[0].TotalWeight, bins[1].TotalWeight), 5.0)
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestShouldUseConcurrentProcessingThreshold(t *testing.T) {
	p := New(2, 8)
	defer p.Close()
	assert.True(t, p.ShouldUseConcurrentProcessing(2))
	assert.False(t, p.ShouldUseConcurrentProcessing(1))

	single := New(1, 8)
	defer single.Close()
	assert.False(t, single.ShouldUseConcurrentProcessing(5))
}

func TestProcessDispatchesAndCollectsResults(t *testing.T) {
	p := New(2, 8)
	defer p.Close()

	tasks := []Task{
		{Index: 0, Weight: 1, Proc: &fakeProcessor{fill: 0.5, audible: true}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000},
		{Index: 1, Weight: 1, Proc: &fakeProcessor{fill: 0.25, audible: true}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000},
		{Index: 2, Weight: 1, Proc: &fakeProcessor{fill: 0, audible: false}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000},
	}

	results, err := p.Process(tasks, sonora.SourceTime{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, v := range tasks[0].Output {
		assert.Equal(t, float32(0.5), v)
	}
	for _, v := range tasks[1].Output {
		assert.Equal(t, float32(0.25), v)
	}
}

func TestProcessPropagatesWorkerPanicAsError(t *testing.T) {
	p := New(2, 8)
	defer p.Close()

	tasks := []Task{
		{Index: 0, Weight: 1, Proc: &fakeProcessor{panics: true}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000},
	}
	_, err := p.Process(tasks, sonora.SourceTime{})
	assert.Error(t, err)
}

func TestPoolSurvivesAfterAWorkerPanic(t *testing.T) {
	p := New(2, 8)
	defer p.Close()

	bad := []Task{{Index: 0, Weight: 1, Proc: &fakeProcessor{panics: true}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000}}
	_, _ = p.Process(bad, sonora.SourceTime{})

	good := []Task{{Index: 0, Weight: 1, Proc: &fakeProcessor{fill: 1, audible: true}, Output: make([]float32, 4), Channels: 2, SampleRat: 48000}}
	results, err := p.Process(good, sonora.SourceTime{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Audible)
}
