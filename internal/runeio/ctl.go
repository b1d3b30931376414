package runeio

// CaretForm computes the ^-escaped printable form of a C0 control rune,
// e.g. "^A" for 0x01 or "^[" for ESC (0x1b). Returns "" for
// runes outside the control ranges. bytebuf's tty rendering uses this to
// echo control bytes the way a terminal driver would, and the macro
// processor's delimiter validation uses it to name an offending
// character in a warning.
func CaretForm(r rune) string {
	if r < 0x20 || r == 0x7f {
		return "^" + string(r^0x40)
	} else if 0x80 <= r && r <= 0x9f {
		return "^[" + string(r^0xc0)
	}
	return ""
}
