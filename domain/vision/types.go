package vision

import "fmt"

// Region is a rectangular search area in haystack coordinates. A zero Width
// or Height means "extend to the haystack edge". Negative dimensions are
// invalid.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Match is one located occurrence of a needle inside a haystack, with the
// NCC score that accepted it.
type Match struct {
	Left   int     `json:"left"`
	Top    int     `json:"top"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"score"`
}

// Center returns the midpoint of the match rectangle.
func (m Match) Center() (int, int) {
	return m.Left + m.Width/2, m.Top + m.Height/2
}

// LoadError reports a needle image path that could not be opened or decoded.
// Retrying a search cannot fix it, so callers surface it immediately instead
// of polling.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("vision: load needle %s: %v", e.Path, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

// RegionError reports a search region whose effective area is empty after
// clamping to the haystack bounds.
type RegionError struct {
	Region Region
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("vision: invalid search region left=%d top=%d width=%d height=%d",
		e.Region.Left, e.Region.Top, e.Region.Width, e.Region.Height)
}
