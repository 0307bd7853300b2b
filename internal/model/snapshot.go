package model

import "time"

// EngineState is the exportable state of a market engine.
type EngineState struct {
	Instruments []Instrument          `json:"instruments"`
	History     map[string][]PriceBar `json:"history"`
	Prices      map[string]float64    `json:"prices"`
	Trend       TrendState            `json:"trend"`
	Date        time.Time             `json:"date"`
	MacroBias   float64               `json:"macro_bias"`
}

// MacroState is the exportable state of a macro economy.
type MacroState struct {
	Current MacroSnapshot   `json:"current"`
	History []MacroSnapshot `json:"history"`
}

// LedgerState is the exportable state of an investment ledger.
type LedgerState struct {
	Positions []Position `json:"positions"`
	LastTick  int64      `json:"last_tick"`
}

// Snapshot is a faithful encoding of one simulation session, handed to the
// persistence layer. The core does not know how it is stored.
type Snapshot struct {
	SessionID string      `json:"session_id"`
	Seed      int64       `json:"seed"`
	Tick      int64       `json:"tick"`
	Market    EngineState `json:"market"`
	Macro     MacroState  `json:"macro"`
	Ledger    LedgerState `json:"ledger"`
	SavedAt   time.Time   `json:"saved_at"`
}
