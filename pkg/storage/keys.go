package storage

import (
	"path"
	"strings"
)

// VariantKey derives the storage key for a thumbnail variant from the
// original key and a variant tag. The derivation is a pure function of its
// inputs: reprocessing the same job always writes the same keys, so
// redelivered resize jobs overwrite instead of accumulating duplicates.
//
//	pets/p1/original/abc.jpg + "w256" -> pets/p1/derived/abc_w256.jpg
//
// Variants are always encoded as JPEG, so the extension is fixed.
func VariantKey(originalKey, tag string) string {
	dir, file := path.Split(originalKey)
	base := strings.TrimSuffix(file, path.Ext(file))
	dir = strings.TrimSuffix(dir, "/")
	if parent := path.Base(dir); parent == "original" {
		dir = path.Dir(dir) + "/derived"
	}
	if dir == "" || dir == "." {
		return base + "_" + tag + ".jpg"
	}
	return dir + "/" + base + "_" + tag + ".jpg"
}
