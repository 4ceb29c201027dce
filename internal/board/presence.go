package board

// displayPalette is the fixed set of participant colors. Assignment picks
// the lowest unused entry so rejoining a small room tends to give stable
// colors; once the palette is exhausted colors repeat.
var displayPalette = []string{
	"#E53E3E", // red
	"#3182CE", // blue
	"#38A169", // green
	"#D69E2E", // yellow
	"#805AD5", // purple
	"#DD6B20", // orange
	"#319795", // teal
	"#D53F8C", // pink
	"#718096", // gray
	"#2B6CB0", // navy
}

// PresenceInfo is the wire form of one live participant
type PresenceInfo struct {
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

// nextColor returns the lowest palette color not currently in use, wrapping
// around once every color is taken.
func nextColor(inUse []string) string {
	used := make(map[string]bool, len(inUse))
	for _, c := range inUse {
		used[c] = true
	}
	for _, c := range displayPalette {
		if !used[c] {
			return c
		}
	}
	return displayPalette[len(inUse)%len(displayPalette)]
}
