package config

// sectionDocs holds the comment written above each table header when the
// config is saved.
var sectionDocs = map[string]string{
	"discord": "Discord application used for Rich Presence.",
	"display": "Static presence assets. large_image is an asset key of the Discord application;\n" +
		"leave it empty to show no large image.",
	"game": "How the game client is found. process_names are glob patterns matched against\n" +
		"process names. Set log_path to skip process discovery entirely.",
	"locations": "Area name table. The cache file is used when present; delete it to re-download.",
	"behavior": "Timing, in seconds. The presence is pushed every poll_interval_seconds.\n" +
		"reconnect_interval_seconds = 0 never reconnects after Discord goes away.",
	"patterns": "Log line pattern overrides for localized clients (Go regexp syntax).\n" +
		"level_up needs 3 groups (name, class, level), instance needs 3 (level, area, seed),\n" +
		"afk needs 1 (on/off word). Empty values use the English defaults.",
	"log": "Daemon log. level is one of trace, debug, info, warn, error.",
}
