package config

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/marketrelay/marketrelay/internal/analysis"
	"github.com/marketrelay/marketrelay/internal/classifier"
)

// LoadIndicatorConfig reads the periods/types JSON (spec §6.3); a missing
// file falls back to analysis.DefaultOptions(), a malformed one fails
// fast, matching the teacher's LoadTradingBotConfig posture.
func LoadIndicatorConfig(path string) (analysis.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return analysis.DefaultOptions(), nil
		}
		return analysis.Options{}, err
	}
	opt := analysis.DefaultOptions()
	if err := json.Unmarshal(data, &opt); err != nil {
		return analysis.Options{}, err
	}
	return opt, nil
}

// LoadSignalTable reads the per-asset TradeSignalEntry array (spec §6.3).
// A missing file yields an empty table (every status resolves to Idle);
// a malformed one fails fast.
func LoadSignalTable(path string) (classifier.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return classifier.Table{}, nil
		}
		return classifier.Table{}, err
	}
	var entries []classifier.TradeSignalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return classifier.Table{}, err
	}
	return classifier.Table{Entries: entries}, nil
}

// codeTableEntry is the on-disk shape of one CandleMasterCode row (spec
// §6.3: "[{statusCode, statusDesc}]").
type codeTableEntry struct {
	StatusCode uint32 `json:"statusCode"`
	StatusDesc string `json:"statusDesc"`
}

// LoadCodeTable reads the CandleMasterCode table; a missing file falls
// back to classifier.LoadCodeTable()'s built-in 84-entry default.
func LoadCodeTable(path string) (map[string]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return classifier.LoadCodeTable(), nil
		}
		return nil, err
	}
	var entries []codeTableEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	table := make(map[string]uint32, len(entries))
	for _, e := range entries {
		table[e.StatusDesc] = e.StatusCode
	}
	return table, nil
}
