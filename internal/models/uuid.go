package models

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// SortUUIDs orders ids by byte value so map-derived slices iterate deterministically.
func SortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// LessUUID reports whether a sorts before b.
func LessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
