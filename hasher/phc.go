package hasher

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDigest, reason)
}

// parsePHC decodes $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func parsePHC(digest string) (*phc, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, invalid("format")
	}
	if parts[1] != algorithmID {
		return nil, invalid("unsupported algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, invalid("missing version")
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, invalid("unsupported version")
	}

	out := &phc{}
	if err := parseParams(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, invalid("salt")
	}

	out.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(out.hash) == 0 {
		return nil, invalid("hash")
	}
	out.keyLength = uint32(len(out.hash))

	return out, nil
}

func parseParams(part string, out *phc) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return invalid("parameter format")
	}

	var seen [3]bool
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return invalid("parameter entry")
		}

		switch key {
		case "m":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return invalid("memory parameter")
			}
			out.memory = uint32(n)
			seen[0] = true
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return invalid("time parameter")
			}
			out.time = uint32(n)
			seen[1] = true
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return invalid("parallelism parameter")
			}
			out.parallelism = uint8(n)
			seen[2] = true
		default:
			return invalid("unsupported parameter")
		}
	}

	if !seen[0] || !seen[1] || !seen[2] {
		return invalid("missing parameters")
	}

	return nil
}
