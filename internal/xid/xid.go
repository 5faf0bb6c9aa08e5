package xid

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a sortable identifier such as "ord-01j9zk3c5t4x8m2q6w7e1r0y9b".
func New(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}
