package engine

// Line is one ranked principal variation reported by the engine.
type Line struct {
	PVIndex    int      `json:"pv_index"`
	ScoreType  string   `json:"score_type"`
	ScoreValue int      `json:"score_value"`
	Depth      int      `json:"depth"`
	Seldepth   int      `json:"seldepth"`
	Nodes      int      `json:"nodes"`
	NPS        int      `json:"nps"`
	Hashfull   int      `json:"hashfull"`
	PVUSI      []string `json:"pv_usi"`
}
