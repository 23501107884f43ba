package layout

import "testing"

type fixed struct{ h, w int }

func (f fixed) Height(avail int) int {
	if f.h == 0 {
		return avail
	}
	return f.h
}

func (f fixed) Width(avail int) int {
	if f.w == 0 {
		return avail
	}
	return f.w
}

func expectRect(t *testing.T, w *Window, want Rect) {
	t.Helper()
	if w.Rect != want {
		t.Fatalf("%s placed at %+v, want %+v", w.Name, w.Rect, want)
	}
}

func TestArrange_TaglistAbsorbsSpaceLeftByInput(t *testing.T) {
	taglist := &Window{Name: "taglist", Align: "neutral", Border: BorderSmart, Absorb: true}
	input := &Window{Name: "input", Align: "bottom", Border: BorderSmart, Size: fixed{h: 1}}

	tiles, floats := Arrange([]*Window{taglist, input}, 24, 80)
	if len(tiles) != 2 || len(floats) != 0 {
		t.Fatalf("unexpected split: %d tiles, %d floats", len(tiles), len(floats))
	}
	expectRect(t, taglist, Rect{Top: 0, Left: 0, Height: 23, Width: 80})
	expectRect(t, input, Rect{Top: 23, Left: 0, Height: 1, Width: 80})

	if taglist.Borders != (Borders{Bottom: true}) {
		t.Fatalf("taglist should only border the input box, got %+v", taglist.Borders)
	}
	if input.Borders != (Borders{Top: true}) {
		t.Fatalf("input should only border the taglist, got %+v", input.Borders)
	}
}

func TestArrange_TopWindowHonoursMaxHeight(t *testing.T) {
	banner := &Window{Name: "banner", Align: "top", MaxHeight: 3}
	taglist := &Window{Name: "taglist", Absorb: true}

	Arrange([]*Window{taglist, banner}, 24, 80)
	expectRect(t, banner, Rect{Top: 0, Left: 0, Height: 3, Width: 80})
	expectRect(t, taglist, Rect{Top: 3, Left: 0, Height: 21, Width: 80})
}

func TestArrange_LeftRightSplit(t *testing.T) {
	left := &Window{Name: "left", Align: "left", Border: BorderSmart}
	right := &Window{Name: "right", Align: "right", Border: BorderSmart}

	Arrange([]*Window{right, left}, 24, 80)
	expectRect(t, left, Rect{Top: 0, Left: 0, Height: 24, Width: 40})
	expectRect(t, right, Rect{Top: 0, Left: 40, Height: 24, Width: 40})
	if !left.Borders.Right || left.Borders.Left || !right.Borders.Left || right.Borders.Right {
		t.Fatalf("unexpected shared-edge borders: left %+v right %+v", left.Borders, right.Borders)
	}
}

func TestArrange_EvenSharesWithRequest(t *testing.T) {
	a := &Window{Name: "a", Align: "top", Size: fixed{h: 2}}
	b := &Window{Name: "b", Align: "top"}
	c := &Window{Name: "c", Align: "top"}

	Arrange([]*Window{a, b, c}, 30, 10)
	// a asks for 2 of its 7; b and c split what is left with the empty band.
	expectRect(t, a, Rect{Top: 0, Left: 0, Height: 2, Width: 10})
	expectRect(t, b, Rect{Top: 2, Left: 0, Height: 9, Width: 10})
	expectRect(t, c, Rect{Top: 11, Left: 0, Height: 9, Width: 10})
}

func TestArrange_Floats(t *testing.T) {
	reader := &Window{Name: "reader", Float: true, Align: "topleft", Border: BorderSmart, MaxHeight: 10}
	box := &Window{Name: "box", Float: true, Align: "bottomright", Border: BorderSmart, Size: fixed{h: 5, w: 20}}
	center := &Window{Name: "center", Float: true, Align: "center", Border: BorderFull, Size: fixed{h: 10, w: 40}}

	tiles, floats := Arrange([]*Window{reader, box, center}, 24, 80)
	if len(tiles) != 0 || len(floats) != 3 {
		t.Fatalf("unexpected split: %d tiles, %d floats", len(tiles), len(floats))
	}

	expectRect(t, reader, Rect{Top: 0, Left: 0, Height: 10, Width: 80})
	if reader.Borders != (Borders{Bottom: true}) {
		t.Fatalf("top float should get a bottom border, got %+v", reader.Borders)
	}

	expectRect(t, box, Rect{Top: 19, Left: 60, Height: 5, Width: 20})
	if box.Borders != (Borders{Top: true, Left: true}) {
		t.Fatalf("unexpected bottom-right float borders: %+v", box.Borders)
	}

	expectRect(t, center, Rect{Top: 7, Left: 20, Height: 10, Width: 40})
	if center.Borders != (Borders{true, true, true, true}) {
		t.Fatalf("full border expected, got %+v", center.Borders)
	}
}

func TestArrange_NoBorderPolicy(t *testing.T) {
	w := &Window{Name: "reader", Float: true, Align: "topleft", Border: BorderNone, MaxHeight: 4}
	Arrange([]*Window{w}, 24, 80)
	if w.Borders != (Borders{}) {
		t.Fatalf("expected no borders, got %+v", w.Borders)
	}
}

func TestArrange_TinyScreen(t *testing.T) {
	taglist := &Window{Name: "taglist", Absorb: true}
	input := &Window{Name: "input", Align: "bottom", Size: fixed{h: 1}}
	Arrange([]*Window{taglist, input}, 1, 5)
	if taglist.Rect.Height < 0 || input.Rect.Height < 0 {
		t.Fatalf("negative size: %+v %+v", taglist.Rect, input.Rect)
	}
}
