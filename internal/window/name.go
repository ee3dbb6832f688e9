package window

import "strings"

// nameReplacer strips the drive prefix, virtual disk extensions and the
// default Hyper-V folder token from counter instance names such as
// "C:-Virtual Hard Disks-web01.vhdx".
var nameReplacer = []struct{ old, new string }{
	{"C:-", ""},
	{".vhdx", ""},
	{".avhdx", ""},
	{"Virtual Hard Disks-", ""},
}

// DisplayName derives a short display name from a raw instance identifier.
// Identifiers without any of the known tokens are returned unchanged.
func DisplayName(id string) string {
	for _, r := range nameReplacer {
		id = strings.ReplaceAll(id, r.old, r.new)
	}
	return id
}
