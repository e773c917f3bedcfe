package sink

import "plutus/internal/engine"

// Multi fans each match out to every underlying sink in order. The first
// failure is returned; earlier sinks keep their record, which is fine for
// an append-only store.
type Multi []engine.Sink

func (m Multi) Record(match engine.Match) error {
	for _, s := range m {
		if err := s.Record(match); err != nil {
			return err
		}
	}
	return nil
}
