package models

import "time"

// Photo is a single gallery entry. ID and CreatedAt are assigned by the
// backend; URL is fixed once the object has been stored.
type Photo struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// PhotoFields holds the user-editable columns of a photo row.
type PhotoFields struct {
	Title    string   `json:"title"`
	Location string   `json:"location"`
	Category Category `json:"category"`
}

// NewPhoto is the insert payload; the URL comes from the object store.
type NewPhoto struct {
	URL string `json:"url"`
	PhotoFields
}

// WithoutID returns a copy of photos with every entry whose ID equals id
// removed. The input slice is not modified.
func WithoutID(photos []Photo, id int64) []Photo {
	out := make([]Photo, 0, len(photos))
	for _, p := range photos {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
