// Package process tracks the manufacturing processes mirrored by the twin and
// derives their cycle-time, efficiency, and quality metrics from live telemetry.
package process

import (
	"time"
)

// Type identifies a kind of manufacturing process
type Type string

// Supported process types
const (
	TypeCNC              Type = "cnc_machining"
	TypePrint3D          Type = "3d_printing"
	TypeInjectionMolding Type = "injection_molding"
	TypeAssembly         Type = "assembly"
)

// State holds the current condition of one manufacturing process.
// Registry methods return copies; callers never share the internal value.
type State struct {
	ID              string             `json:"id"`
	Type            Type               `json:"type"`
	Active          bool               `json:"active"`
	CycleTime       float64            `json:"cycle_time"`        // seconds, wall-clock since start
	TargetCycleTime float64            `json:"target_cycle_time"` // seconds
	Efficiency      float64            `json:"efficiency"`        // target/actual*100, clamped <=150
	QualityScore    float64            `json:"quality_score"`     // 0..100
	Parameters      map[string]float64 `json:"parameters"`
	StartedAt       time.Time          `json:"started_at,omitempty"`
	LastUpdate      time.Time          `json:"last_update,omitempty"`
}

// clone returns a deep copy safe to hand to readers.
func (s *State) clone() State {
	cp := *s
	cp.Parameters = make(map[string]float64, len(s.Parameters))
	for k, v := range s.Parameters {
		cp.Parameters[k] = v
	}
	return cp
}

// CatalogEntry declares one process in the fixed startup catalog.
type CatalogEntry struct {
	ID              string  `json:"id"`
	Type            Type    `json:"type"`
	TargetCycleTime float64 `json:"target_cycle_time"`
}

// DefaultCatalog returns the standard equipment catalog: one process per
// supported type, all initially inactive.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{ID: "cnc-001", Type: TypeCNC, TargetCycleTime: 180},
		{ID: "printer-001", Type: TypePrint3D, TargetCycleTime: 3600},
		{ID: "molding-001", Type: TypeInjectionMolding, TargetCycleTime: 45},
		{ID: "assembly-001", Type: TypeAssembly, TargetCycleTime: 300},
	}
}
