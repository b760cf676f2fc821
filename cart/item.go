package cart

import (
	"time"
)

// Item is a single entry of a user's sharing cart: an activity, resource or label
// that was backed up so it can later be restored into another course.
type Item struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"userid"`
	ModName           string    `json:"modname"`
	ModIcon           string    `json:"modicon,omitempty"`
	ModText           string    `json:"modtext"`
	FileID            int64     `json:"fileid"`
	Filename          string    `json:"filename"`
	CourseFullName    string    `json:"coursefullname,omitempty"`
	UninstalledPlugin bool      `json:"uninstalled_plugin"`
	Tree              string    `json:"tree"`
	Weight            int       `json:"weight"`
	Created           time.Time `json:"created"`
}

// IsCopying reports whether the backing backup file has not been materialized yet.
func (it *Item) IsCopying() bool {
	return it.FileID < 1
}

// Disabled reports whether the item can not be copied out of the cart.
func (it *Item) Disabled() bool {
	return it.IsCopying() || it.UninstalledPlugin
}

// Placeholder reports whether the item only exists to keep an empty folder visible.
func (it *Item) Placeholder() bool {
	return it.ModName == ""
}

// FileRef describes a stored backup file.
type FileRef struct {
	ID          int64  `json:"id"`
	ContextID   int64  `json:"contextid"`
	Component   string `json:"component"`
	FileArea    string `json:"filearea"`
	FilePath    string `json:"filepath"`
	FileName    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentHash string `json:"contenthash,omitempty"`
}
