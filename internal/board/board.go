package board

import "hash/fnv"

type Variant string

const (
	VariantNote  Variant = "note"
	VariantCard  Variant = "card"
	VariantImage Variant = "image"
)

// Field names a text region of an item that can hold a caret.
type Field string

const (
	FieldTitle   Field = "title"
	FieldContent Field = "content"
)

// Item is one positioned element on a board. Width/Height, Title, Color and
// Rotation are nullable; nil means "use the variant default" for size and
// "unset" for the rest.
type Item struct {
	ID       string   `json:"id"`
	Variant  Variant  `json:"variant"`
	BoardID  string   `json:"board_id"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Content  string   `json:"content"`
	Color    *string  `json:"color,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Connection links two items on the same board. The pair is unordered:
// (a,b) and (b,a) are the same connection.
type Connection struct {
	ID         string `json:"id"`
	BoardID    string `json:"board_id"`
	FromItemID string `json:"from_item_id"`
	ToItemID   string `json:"to_item_id"`
}

// SamePair reports whether the connection joins a and b in either order.
func (c Connection) SamePair(a, b string) bool {
	return (c.FromItemID == a && c.ToItemID == b) || (c.FromItemID == b && c.ToItemID == a)
}

// Touches reports whether the connection has id as either endpoint.
func (c Connection) Touches(id string) bool {
	return c.FromItemID == id || c.ToItemID == id
}

type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CaretPos struct {
	ItemID string `json:"item_id"`
	Field  Field  `json:"field"`
	Offset int    `json:"offset"`
}

// PresenceEntry is the live, unpersisted state for one connected user.
type PresenceEntry struct {
	UserID        string     `json:"user_id"`
	Color         string     `json:"color"`
	FocusedItemID *string    `json:"focused_item_id,omitempty"`
	Cursor        *CursorPos `json:"cursor,omitempty"`
	Caret         *CaretPos  `json:"caret,omitempty"`
}

var presencePalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080",
}

// ColorFor assigns a display color to a user. Deterministic so every client
// renders the same user the same way without coordination.
func ColorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return presencePalette[h.Sum32()%uint32(len(presencePalette))]
}

// DefaultSize returns the width/height an item gets when created without one.
func DefaultSize(v Variant) (w, h float64) {
	switch v {
	case VariantCard:
		return 250, 150
	case VariantImage:
		return 200, 200
	default:
		return 200, 200
	}
}
