package mirror

import "strconv"

// migration rewrites a CantoCurses tree from one version to the next.
type migration func(conf Node) Node

// migrations[i] upgrades a version i tree to version i+1.
var migrations = []migration{
	migrateNamedColors,
}

// legacyColorNames is the order in which version 0 pair numbers were
// assigned to their roles.
var legacyColorNames = []string{
	"unread", "read", "reader_link", "reader_image_link",
	"reader_quote", "error", "reader_italics", "marked",
}

func configVersion(conf Node) int {
	if v, ok := conf.M["config_version"]; ok && v.Kind == KindInt {
		return v.I
	}
	return 0
}

// Migrate brings conf up to ConfigVersion. It reports whether anything ran
// so the caller can write the result back.
func Migrate(conf Node) (Node, bool) {
	if conf.Kind != KindMap {
		return conf, false
	}
	ver := configVersion(conf)
	if ver >= len(migrations) {
		return conf, false
	}
	for ; ver < len(migrations); ver++ {
		conf = migrations[ver](conf)
	}
	return conf, true
}

// migrateNamedColors moves the old numbered color roles to named entries
// and puts the pair table back to its defaults.
func migrateNamedColors(conf Node) Node {
	out := conf.Clone()
	old := Map(nil)
	if c, ok := out.M["color"]; ok && c.Kind == KindMap {
		old = c
	}

	color := FromValue(ColorDefaults())
	for i, name := range legacyColorNames {
		if v, ok := old.M[strconv.Itoa(i+1)]; ok {
			color.M[name] = v.Clone()
		}
	}
	for _, key := range []string{"deffg", "defbg"} {
		if v, ok := old.M[key]; ok {
			color.M[key] = v.Clone()
		}
	}
	out.M["color"] = color
	out.M["config_version"] = Int(1)
	return out
}
