package mixer

import "github.com/intuitionamiga/sonora"

// Effect processes a mixer's output in place, once per audio block,
// after every source has been summed in. The effect *algorithm*
// catalogue (reverb, delay, filters, ...) is out of scope for this
// engine; Effect is the seam a concrete implementation plugs into.
type Effect interface {
	// Process transforms buf (interleaved, channels channels) in place.
	Process(buf []float32, channels, sampleRate int) error
}

// GainEffect is a minimal Effect: a fixed linear gain applied to every
// sample. It exists to exercise the effect chain end to end without
// reaching into the out-of-scope effect algorithm catalogue.
type GainEffect struct {
	Gain float32
}

// Process implements Effect.
func (g GainEffect) Process(buf []float32, channels, sampleRate int) error {
	for i := range buf {
		buf[i] *= g.Gain
	}
	return nil
}

// chain is an ordered, addressable list of effects applied in sequence.
type chain struct {
	ids     []sonora.EffectID
	effects []Effect
}

func (c *chain) add(id sonora.EffectID, e Effect) {
	c.ids = append(c.ids, id)
	c.effects = append(c.effects, e)
}

func (c *chain) remove(id sonora.EffectID) bool {
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			c.effects = append(c.effects[:i], c.effects[i+1:]...)
			return true
		}
	}
	return false
}

// move relocates the effect with id to newIndex in the chain, clamping
// newIndex into range. Returns false if id is not present.
func (c *chain) move(id sonora.EffectID, newIndex int) bool {
	from := -1
	for i, existing := range c.ids {
		if existing == id {
			from = i
			break
		}
	}
	if from < 0 {
		return false
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(c.ids) {
		newIndex = len(c.ids) - 1
	}
	if from == newIndex {
		return true
	}
	idVal, effVal := c.ids[from], c.effects[from]
	c.ids = append(c.ids[:from], c.ids[from+1:]...)
	c.effects = append(c.effects[:from], c.effects[from+1:]...)

	c.ids = append(c.ids[:newIndex], append([]sonora.EffectID{idVal}, c.ids[newIndex:]...)...)
	c.effects = append(c.effects[:newIndex], append([]Effect{effVal}, c.effects[newIndex:]...)...)
	return true
}

func (c *chain) removeAll() {
	c.ids = c.ids[:0]
	c.effects = c.effects[:0]
}

func (c *chain) process(buf []float32, channels, sampleRate int) error {
	for _, e := range c.effects {
		if err := e.Process(buf, channels, sampleRate); err != nil {
			return err
		}
	}
	return nil
}
