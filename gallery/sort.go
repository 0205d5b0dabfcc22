package gallery

import (
	"sort"

	"github.com/facette/natsort"

	"github.com/mjbphoto/gallery/models"
)

const (
	SortDateDesc = "date_desc"
	SortDateAsc  = "date_asc"
	SortTitleNat = "title_nat"
)

const DefaultSortOrder = SortDateDesc

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortDateDesc, SortDateAsc, SortTitleNat:
		return true
	default:
		return false
	}
}

// SortPhotos returns a sorted copy. Unknown orders fall back to
// DefaultSortOrder, which is also the order rows arrive in.
func SortPhotos(photos []models.Photo, order string) []models.Photo {
	out := append([]models.Photo(nil), photos...)
	switch order {
	case SortDateAsc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortTitleNat:
		sort.SliceStable(out, func(i, j int) bool {
			return natsort.Compare(out[i].Title, out[j].Title)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID > out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}
