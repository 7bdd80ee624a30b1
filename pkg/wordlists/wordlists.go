// Package wordlists bundles the value lists used by the hosts, methods and urls commands.
package wordlists

import (
	"embed"
	"sort"
	"strings"
)

// Names of the bundled lists.
const (
	Hosts         = "hosts"
	Methods       = "methods"
	URLEncoded    = "url-encoded"
	IgnoreHeaders = "ignore-headers"
)

//go:embed *.txt
var files embed.FS

// FS exposes the bundled lists as "<name>.txt".
var FS = files

// Ref returns the value-source reference of a bundled list.
func Ref(name string) string {
	return "@builtin:" + name
}

// Names returns the sorted names of the bundled lists.
func Names() []string {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".txt"))
	}
	sort.Strings(names)
	return names
}
