// Package ids normalizes the video identifiers found in catalog urls into
// the form each platform API expects.
package ids

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Bilibili av <-> BV bijection parameters.
const (
	bvTable    = "fZodR9XQDSUm21yCkr6zBqiveYah8bt4xsWpHnJE7jL5VG3guMTKNPAwcF"
	bvTemplate = "BV1  4 1 7  "
	bvXor      = 177451812
	bvAdd      = 8728348608
	bvSpace    = 58 * 58 * 58 * 58 * 58 * 58 // six base-58 digits
)

var bvPositions = [6]int{11, 10, 3, 8, 4, 6}

var bvIndex = func() map[byte]int64 {
	m := make(map[byte]int64, len(bvTable))
	for i := 0; i < len(bvTable); i++ {
		m[bvTable[i]] = int64(i)
	}
	return m
}()

var (
	ErrInvalidAV = errors.New("invalid av id")
	ErrInvalidBV = errors.New("invalid BV id")
)

var (
	bvRe = regexp.MustCompile(`(?i)BV[0-9a-zA-Z]+`)
	avRe = regexp.MustCompile(`(?i)av[0-9]+`)
)

// Normalize returns the canonical BV id contained in raw.
// A BV substring is returned as-is, an av substring is converted,
// anything else is returned unchanged and left for the API to reject.
func Normalize(raw string) string {
	if bv := bvRe.FindString(raw); bv != "" {
		return bv
	}
	if av := avRe.FindString(raw); av != "" {
		if bv, err := AVToBV(av); err == nil {
			return bv
		}
	}
	return raw
}

// AVToBV converts a legacy "av<n>" id (prefix optional) to its BV form.
func AVToBV(av string) (string, error) {
	digits := av
	if len(digits) >= 2 && strings.EqualFold(digits[:2], "av") {
		digits = digits[2:]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return "", ErrInvalidAV
	}

	x := (n ^ bvXor) + bvAdd
	if x < 0 || x >= bvSpace {
		return "", ErrInvalidAV
	}

	r := []byte(bvTemplate)
	pow := int64(1)
	for _, pos := range bvPositions {
		r[pos] = bvTable[(x/pow)%58]
		pow *= 58
	}
	return string(r), nil
}

// BVToAV converts a 12-character BV id back to its "av<n>" form.
func BVToAV(bv string) (string, error) {
	if len(bv) != len(bvTemplate) || bv[:3] != bvTemplate[:3] ||
		bv[5] != '4' || bv[7] != '1' || bv[9] != '7' {
		return "", ErrInvalidBV
	}

	var x, pow int64 = 0, 1
	for _, pos := range bvPositions {
		d, ok := bvIndex[bv[pos]]
		if !ok {
			return "", ErrInvalidBV
		}
		x += d * pow
		pow *= 58
	}

	n := (x - bvAdd) ^ bvXor
	if x < bvAdd || n < 0 {
		return "", ErrInvalidBV
	}
	return "av" + strconv.FormatInt(n, 10), nil
}
