package utils

import (
	"encoding/binary"

	"github.com/google/uuid"
)

func GetGUID() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[0:8]) >> 2)
}

// A uniformly random suffix in [1, max]. Zero is reserved to mean
// "assign one for me" so it is never produced here.
func RandomSuffix(max int64) int64 {
	return GetGUID()%max + 1
}
