// Package licensekey generates and checks TW-XXXX-XXXX-XXXX-XXXX license keys.
//
// The first three groups are random characters from Alphabet. The fourth group
// is a checksum over those twelve characters, so a typo can be caught without
// touching the store.
package licensekey

import (
	"crypto/rand"
	"io"
	"regexp"
	"strings"
)

const (
	Prefix = "TW"

	// Alphabet avoids the ambiguous 0/O and 1/I pairs. Its length divides 256,
	// so reducing a random byte modulo len(Alphabet) is unbiased.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	groupLen   = 4
	payloadLen = 3 * groupLen
	keyLen     = len(Prefix) + 4*(groupLen+1)
)

var formatRe = regexp.MustCompile(`^TW-[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`)

// Generate returns a fresh key drawn from crypto/rand.
func Generate() (string, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom builds a key from the bytes of r.
func GenerateFrom(r io.Reader) (string, error) {
	buf := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	idx := make([]int, payloadLen)
	for i, b := range buf {
		idx[i] = int(b) % len(Alphabet)
	}
	return format(idx, checksum(idx)), nil
}

// WellFormed reports whether key has the public TW-XXXX-XXXX-XXXX-XXXX shape.
// Keys issued before the checksum existed use any uppercase alphanumeric and
// still pass.
func WellFormed(key string) bool {
	return formatRe.MatchString(key)
}

// Verify reports whether key is well formed, uses only Alphabet and carries a
// matching checksum group.
func Verify(key string) bool {
	if len(key) != keyLen || !WellFormed(key) {
		return false
	}
	groups := strings.Split(key, "-")[1:]
	idx := make([]int, 0, payloadLen)
	for _, g := range groups[:3] {
		for _, c := range g {
			i := strings.IndexRune(Alphabet, c)
			if i < 0 {
				return false
			}
			idx = append(idx, i)
		}
	}
	want := checksum(idx)
	for i, c := range groups[3] {
		if strings.IndexRune(Alphabet, c) != want[i] {
			return false
		}
	}
	return true
}

// Normalize trims surrounding whitespace and uppercases the key.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// checksum computes four weighted sums modulo 32. The plain sum changes under
// any single substitution; the position weighted sum changes under any swap of
// two adjacent different characters.
func checksum(idx []int) [groupLen]int {
	var s0, s1, s2, s3 int
	for i, v := range idx {
		s0 += v
		s1 += (i + 1) * v
		s2 += (2*i + 1) * v
		s3 += (3*i + 7) * v
	}
	n := len(Alphabet)
	return [groupLen]int{s0 % n, s1 % n, s2 % n, (s3 + 11) % n}
}

func format(idx []int, sum [groupLen]int) string {
	var b strings.Builder
	b.Grow(keyLen)
	b.WriteString(Prefix)
	for i, v := range idx {
		if i%groupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[v])
	}
	b.WriteByte('-')
	for _, v := range sum {
		b.WriteByte(Alphabet[v])
	}
	return b.String()
}
