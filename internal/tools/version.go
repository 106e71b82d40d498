package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// semver is a parsed major.minor.patch version. Pre-release and build
// metadata are not supported; tool versions are plain dotted triples.
type semver struct {
	major, minor, patch int
}

// parseVersion parses "1", "1.2", or "1.2.3". A leading "v" is accepted.
func parseVersion(s string) (semver, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return semver{}, fmt.Errorf("tools: empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return semver{}, fmt.Errorf("tools: version %q has too many segments", s)
	}
	var v semver
	fields := []*int{&v.major, &v.minor, &v.patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return semver{}, fmt.Errorf("tools: version %q segment %q is not a number", s, p)
		}
		*fields[i] = n
	}
	return v, nil
}

// compare returns -1, 0, or 1 for v against other.
func (v semver) compare(other semver) int {
	switch {
	case v.major != other.major:
		return sign(v.major - other.major)
	case v.minor != other.minor:
		return sign(v.minor - other.minor)
	default:
		return sign(v.patch - other.patch)
	}
}

func (v semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
