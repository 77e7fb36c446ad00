package projection

import "github.com/qqoqto/travel-planner/internal/models"

// Checkable is an item with a completion flag.
type Checkable interface {
	IsChecked() bool
}

// Progress counts completed items out of a total.
type Progress struct {
	Done  int
	Total int
}

// Completed counts checked items.
func Completed[T Checkable](items []T) Progress {
	p := Progress{Total: len(items)}
	for _, item := range items {
		if item.IsChecked() {
			p.Done++
		}
	}
	return p
}

// PresenceCount is the number of online members out of all known members.
type PresenceCount struct {
	Online int
	Total  int
}

// Presence counts online members. Total includes offline and stale records.
func Presence(members []models.Member) PresenceCount {
	c := PresenceCount{Total: len(members)}
	for _, m := range members {
		if m.Online {
			c.Online++
		}
	}
	return c
}
