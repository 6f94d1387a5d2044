// Package contributor derives the low-entropy, four-octal-digit
// identifier surfaced in place of a client's IP address (spec.md §3
// "Contributor code"). There is no library in the retrieval pack for
// this — it is a four-line hash-and-format, not a concern any example
// repo reaches for a dependency to cover, so it stays on the standard
// library (see DESIGN.md).
package contributor

import "hash/fnv"

// modulus is 8^4: four octal digits.
const modulus = 8 * 8 * 8 * 8

// Code hashes a client address (as returned by net.Conn.RemoteAddr,
// host part only) to a stable 4-digit octal string. Collisions across
// unrelated IPs are expected and intentional: the code identifies nothing
// beyond "same or different contributor than this other code", never
// an actual address.
func Code(remoteIP string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(remoteIP))
	n := h.Sum32() % modulus
	return octal4(n)
}

func octal4(n uint32) string {
	const digits = "01234567"
	buf := [4]byte{}
	for i := 3; i >= 0; i-- {
		buf[i] = digits[n%8]
		n /= 8
	}
	return string(buf[:])
}
