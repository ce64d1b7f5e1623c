package utils

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// DeriveContentID builds a stable identifier for a feed item that carries no
// permalink-derived ID. The hash covers the author, a text prefix and the
// attached image URLs, the parts that survive re-renders of the same item.
func DeriveContentID(username, text string, imageURLs []string) string {
	prefix := text
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}

	h := fnv.New32a()
	h.Write([]byte(username))
	h.Write([]byte(prefix))
	h.Write([]byte(strings.Join(imageURLs, ",")))
	return fmt.Sprintf("content-%x", h.Sum32())
}
