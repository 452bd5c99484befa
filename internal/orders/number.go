package orders

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix   = "ORD"
	suffixLength   = 4
	base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxNumberTries = 5
)

// NewOrderNumber returns ORD-<base36 millis>-<4 random base36>. Uniqueness is
// enforced by the order_number index; callers retry on collision.
func NewOrderNumber(now time.Time) string {
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return numberPrefix + "-" + stamp + "-" + randomSuffix(suffixLength)
}

func randomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(base36Alphabet[time.Now().UnixNano()%int64(len(base36Alphabet))])
			continue
		}
		b.WriteByte(base36Alphabet[idx.Int64()])
	}
	return b.String()
}
