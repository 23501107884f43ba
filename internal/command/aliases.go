package command

// DefaultAliases is the alias table every session starts with.
func DefaultAliases() map[string]string {
	oneConfig := func(path string) string { return "remote one-config " + path }
	evalConfig := func(path string) string { return "remote one-config --eval " + path }

	aliases := map[string]string{
		"add":    "remote addfeed",
		"del":    "remote delfeed",
		"list":   "remote listfeeds",
		"q":      "quit",
		"filter": "transform",
		"sort":   "transform",

		"browser":     oneConfig("CantoCurses.browser.path"),
		"txt_browser": evalConfig("CantoCurses.browser.text"),

		"cursor_type":   oneConfig("CantoCurses.taglist.cursor.type"),
		"cursor_scroll": oneConfig("CantoCurses.taglist.cursor.scroll"),
		"cursor_edge":   evalConfig("CantoCurses.taglist.cursor.edge"),

		"update_interval": evalConfig("CantoCurses.update.auto.interval"),
		"update_style":    oneConfig("CantoCurses.update.style"),
		"update_auto":     evalConfig("CantoCurses.update.auto.enabled"),

		"border":       evalConfig("CantoCurses.taglist.border"),
		"reader_align": oneConfig("CantoCurses.reader.window.align"),
		"reader_float": evalConfig("CantoCurses.reader.window.float"),

		"keep_time":           evalConfig("defaults.keep_time"),
		"keep_unread":         evalConfig("defaults.keep_unread"),
		"kill_daemon_on_exit": evalConfig("CantoCurses.kill_daemon_on_exit"),
	}
	for _, kind := range []string{"story", "tag"} {
		for _, state := range []string{"selected", "unselected"} {
			aliases[kind+"_"+state] = oneConfig("CantoCurses." + kind + "." + state)
			aliases[kind+"_"+state+"_end"] = oneConfig("CantoCurses." + kind + "." + state + "_end")
		}
	}
	for _, state := range []string{"read", "unread", "marked", "unmarked"} {
		aliases["story_"+state] = oneConfig("CantoCurses.story." + state)
		aliases["story_"+state+"_end"] = oneConfig("CantoCurses.story." + state + "_end")
	}
	return aliases
}
