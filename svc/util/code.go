package util

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/KazeTachinuu/copy-paste/pkg/domain"
)

// Collision retries are internal to minting; callers only see the final
// failure when the code space is effectively saturated.
const maxMintAttempts = 50

// GenCode returns a random code of length n over domain.Alphabet, sourced
// from crypto/rand. The alphabet size (29) does not divide 256, so bytes at
// or above the largest multiple of 29 are rejected and redrawn rather than
// folded in with a modulo, which would slightly favor the low characters.
func GenCode(n int) (string, error) {
	const limit = 256 - 256%len(domain.Alphabet)
	code := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(code) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, domain.Alphabet[int(b)%len(domain.Alphabet)])
			if len(code) == n {
				break
			}
		}
	}
	return string(code), nil
}

// GenUniqueCode mints a code of length n that the exists callback does not
// already know. The retry budget bounds the loop; exhausting it means the
// live code space is saturated, not a transient fault.
func GenUniqueCode(n int, exists func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		code, err := GenCode(n)
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}
