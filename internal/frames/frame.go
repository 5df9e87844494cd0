package frames

type Frame struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}
