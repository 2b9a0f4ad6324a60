package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// JSONSignalSource reads pattern-detector output from
// <dir>/<SYMBOL>_signals.json, a JSON array of signals. Signals whose
// decision bar falls outside the supplied bar stream are dropped rather
// than rejected; the detector may cover a wider history than the run.
type JSONSignalSource struct {
	dir   string
	mu    sync.RWMutex
	cache map[string][]domain.Signal
}

func NewJSONSignalSource(dir string) *JSONSignalSource {
	return &JSONSignalSource{
		dir:   dir,
		cache: make(map[string][]domain.Signal),
	}
}

func (s *JSONSignalSource) Signals(ctx context.Context, symbol string, bars []domain.Bar) ([]domain.Signal, error) {
	s.mu.RLock()
	all, ok := s.cache[symbol]
	s.mu.RUnlock()

	if !ok {
		path := filepath.Join(s.dir, symbol+"_signals.json")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read signal file: %w", err)
		}
		if err := json.Unmarshal(data, &all); err != nil {
			return nil, fmt.Errorf("parse signal file %s: %w", path, err)
		}
		s.mu.Lock()
		s.cache[symbol] = all
		s.mu.Unlock()
	}

	var out []domain.Signal
	for _, sig := range all {
		if sig.DecisionBar < 0 || sig.DecisionBar >= len(bars) {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}
