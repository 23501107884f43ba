package article

// Named colors from the CantoCurses color section. The renderer resolves
// them through the palette, so a user remap applies to every story.
const (
	colorTitle     = "%1"
	colorLink      = "%[reader_link]"
	colorImageLink = "%[reader_image_link]"
	colorQuote     = "%[reader_quote]"
	colorItalics   = "%[reader_italics]"
	colorPop       = "%0"
)

const (
	bulletMarker = "● "
	ruleWidth    = 24
)
