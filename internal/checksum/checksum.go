// Package checksum fingerprints archive content.
package checksum

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Sum returns the 16 hex character XXH3 digest of data.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
