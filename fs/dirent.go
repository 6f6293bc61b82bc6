package fs

// Dirent is a decoded directory entry.
type Dirent struct {
	Name  string
	Type  DirentType
	Inode uint32
}

// DecodeName returns the name stored in a fixed-width name field, stopping
// at the first NUL.
func DecodeName(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}

	return string(field)
}
