package output

// CalcOutput is the JSON shape of a full workbook calculation.
type CalcOutput struct {
	Book   string        `json:"book"`
	Sheets []SheetOutput `json:"sheets"`
	Pass   PassOutput    `json:"pass"`
}

// SheetOutput holds one sheet's populated cells.
type SheetOutput struct {
	Name  string       `json:"name"`
	Cells []CellOutput `json:"cells"`
}

// CellOutput is one populated cell.
type CellOutput struct {
	Address string `json:"address"`
	Value   any    `json:"value"`
	Kind    string `json:"kind"`
	Formula string `json:"formula,omitempty"`
}

// PassOutput summarizes a recalculation pass.
type PassOutput struct {
	Pass       string   `json:"pass"`
	Evaluated  int      `json:"evaluated"`
	Components int      `json:"components"`
	Circular   int      `json:"circular"`
	Iterations int      `json:"iterations,omitempty"`
	Sweeps     int      `json:"sweeps"`
	DurationMs float64  `json:"duration_ms"`
	Issues     []string `json:"issues,omitempty"`
}

// EvalOutput is the JSON shape of a one-shot evaluation.
type EvalOutput struct {
	Formula string `json:"formula"`
	Cell    string `json:"cell"`
	Locale  string `json:"locale"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
}

// DepsOutput is the JSON shape of a dependency query.
type DepsOutput struct {
	Cell       string    `json:"cell"`
	Formula    string    `json:"formula,omitempty"`
	Precedents []DepNode `json:"precedents"`
	Dependents []DepNode `json:"dependents"`
}

// DepNode is one cell in a dependency tree.
type DepNode struct {
	Cell     string    `json:"cell"`
	Formula  string    `json:"formula,omitempty"`
	Value    any       `json:"value"`
	Children []DepNode `json:"children,omitempty"`
}

// FnsOutput is the JSON shape of the function listing.
type FnsOutput struct {
	Functions []FnInfo `json:"functions"`
	Total     int      `json:"total"`
}

// FnInfo describes one registered function.
type FnInfo struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	MinArgs  int    `json:"min_args"`
	MaxArgs  int    `json:"max_args"`
	Volatile bool   `json:"volatile,omitempty"`
}
