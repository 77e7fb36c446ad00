package models

// ChecklistItem is a packing/preparation entry.
type ChecklistItem struct {
	ID        string `json:"-"`
	Item      string `json:"item"`
	Checked   bool   `json:"checked"`
	Important bool   `json:"important"`
}

// SetID injects the remote key.
func (c *ChecklistItem) SetID(id string) { c.ID = id }

// IsChecked reports completion.
func (c ChecklistItem) IsChecked() bool { return c.Checked }

// WishlistItem is something a participant would like to do or buy.
type WishlistItem struct {
	ID      string `json:"-"`
	Item    string `json:"item"`
	Checked bool   `json:"checked"`
}

// SetID injects the remote key.
func (w *WishlistItem) SetID(id string) { w.ID = id }

// IsChecked reports completion.
func (w WishlistItem) IsChecked() bool { return w.Checked }
