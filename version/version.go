/*
Package version implements the schema version algebra: parsing, comparing,
serializing and formatting the (major, minor, patch) triple that identifies
the on-disk layout of the persistent state store.

A Version is serialized as a length-prefixed binary record: a 4-byte
big-endian payload length followed by three 4-byte big-endian integers. This
mirrors the length-prefix convention used elsewhere in this engine for
decoding legacy binary records (see the migration package's legacy task
decoder) rather than depending on any general-purpose serialization format
for a three-integer tuple.
*/
package version

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/mesosphere/schemamigrate/errors"
)

// payloadSize is the number of bytes occupied by the three uint32 fields
// that follow the length prefix.
const payloadSize = 3 * 4

// Version identifies the on-disk schema layout as a (major, minor, patch)
// triple. The zero value is the empty/unknown sentinel (see IsEmpty).
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// Empty is the sentinel value representing "no version persisted yet".
var Empty = Version{}

// buildVersionPattern matches the leading "<major>.<minor>.<patch>" of a
// build metadata string; anything after the third component is ignored.
var buildVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)

// Parse decodes a Version from its length-prefixed binary record. It fails
// with errors.ErrCorruptVersion if the blob is not a valid record.
func Parse(b []byte) (Version, error) {
	if len(b) < 4 {
		return Version{}, errors.ErrCorruptVersion.Newf("record too short: %d bytes", len(b))
	}
	size := binary.BigEndian.Uint32(b[:4])
	rest := b[4:]
	if uint32(len(rest)) != size {
		return Version{}, errors.ErrCorruptVersion.Newf("declared payload size %d does not match actual %d", size, len(rest))
	}
	if size != payloadSize {
		return Version{}, errors.ErrCorruptVersion.Newf("unexpected payload size %d, want %d", size, payloadSize)
	}
	return Version{
		Major: binary.BigEndian.Uint32(rest[0:4]),
		Minor: binary.BigEndian.Uint32(rest[4:8]),
		Patch: binary.BigEndian.Uint32(rest[8:12]),
	}, nil
}

// Serialize encodes v as a length-prefixed binary record suitable for
// storage under the internal:storage:version key.
func Serialize(v Version) []byte {
	out := make([]byte, 4+payloadSize)
	binary.BigEndian.PutUint32(out[0:4], payloadSize)
	binary.BigEndian.PutUint32(out[4:8], v.Major)
	binary.BigEndian.PutUint32(out[8:12], v.Minor)
	binary.BigEndian.PutUint32(out[12:16], v.Patch)
	return out
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b,
// lexicographically on (Major, Minor, Patch).
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return cmpUint32(a.Major, b.Major)
	case a.Minor != b.Minor:
		return cmpUint32(a.Minor, b.Minor)
	default:
		return cmpUint32(a.Patch, b.Patch)
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Version) bool {
	return Compare(a, b) < 0
}

// IsEmpty reports whether v is the (0,0,0) sentinel.
func IsEmpty(v Version) bool {
	return v == Empty
}

// Format renders v for diagnostics as "Version(M, m, p)", matching the
// wording baked into the user-visible UnsupportedVersion message.
func Format(v Version) string {
	return fmt.Sprintf("Version(%d, %d, %d)", v.Major, v.Minor, v.Patch)
}

// String makes Version satisfy fmt.Stringer using the same rendering as
// Format, so %s/%v in log lines are readable without an explicit call.
func (v Version) String() string {
	return Format(v)
}

// CurrentFromBuild derives the binary's current schema version from its
// build metadata string, which must match "^\d+\.\d+\.\d+.*"; anything past
// the third dotted component (a git SHA, a "-dev" suffix, etc.) is ignored.
// Fails with errors.ErrBadBuildVersion if the string does not match.
func CurrentFromBuild(build string) (Version, error) {
	m := buildVersionPattern.FindStringSubmatch(build)
	if m == nil {
		return Version{}, errors.ErrBadBuildVersion.Newf("build version %q does not match <major>.<minor>.<patch>", build)
	}
	major, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Version{}, errors.ErrBadBuildVersion.Newf("build version %q: %s", build, err)
	}
	minor, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return Version{}, errors.ErrBadBuildVersion.Newf("build version %q: %s", build, err)
	}
	patch, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return Version{}, errors.ErrBadBuildVersion.Newf("build version %q: %s", build, err)
	}
	return Version{Major: uint32(major), Minor: uint32(minor), Patch: uint32(patch)}, nil
}

// MustCurrentFromBuild calls CurrentFromBuild and panics on error, for
// callers that treat a malformed build string as a fatal packaging error
// rather than a recoverable runtime condition.
func MustCurrentFromBuild(build string) Version {
	v, err := CurrentFromBuild(build)
	if err != nil {
		panic(err)
	}
	return v
}
