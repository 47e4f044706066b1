package persist

import (
	"fmt"
	"strings"
)

// CollisionPolicy decides what happens when the destination file exists.
type CollisionPolicy string

const (
	// Suffix writes name_1.ext, name_2.ext, ... next to the existing file.
	Suffix CollisionPolicy = "suffix"
	// Overwrite replaces the existing file.
	Overwrite CollisionPolicy = "overwrite"
	// Skip keeps the existing file and does not fetch the image.
	Skip CollisionPolicy = "skip"
	// Fail reports a FILENAME_COLLISION failure.
	Fail CollisionPolicy = "fail"
)

// ParseCollisionPolicy validates a policy name. Empty means Suffix.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Suffix, nil
	case Suffix, Overwrite, Skip, Fail:
		return p, nil
	}
	return "", fmt.Errorf("persist: unknown collision policy %q (want suffix, overwrite, skip or fail)", s)
}
