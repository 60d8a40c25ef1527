package display

// Compose joins the committed history and the in-progress fragment with a
// single space and keeps only the trailing max characters. Recency wins.
func Compose(history, current string, max int) string {
	var text string
	switch {
	case history == "":
		text = current
	case current == "":
		text = history
	default:
		text = history + " " + current
	}
	return Tail(text, max)
}

// Tail returns the last max runes of s. A non-positive max disables truncation.
func Tail(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}
