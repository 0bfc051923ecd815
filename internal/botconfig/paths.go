package botconfig

import "path/filepath"

// Layout locates the bot's files relative to its working directory.
type Layout struct {
	BotDir string
}

// ConfigPath is the bot's main JSON config.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.BotDir, "configs", "config.json")
}

// UserDataPath is the script literal read by the bot's web map.
func (l Layout) UserDataPath() string {
	return filepath.Join(l.BotDir, "web", "config", "userdata.js")
}

// LocationPath is the per-user location file polled by the web map.
func (l Layout) LocationPath(username string) string {
	return filepath.Join(l.BotDir, "web", "location-"+username+".json")
}

// CatchablePath is the per-user catchable file polled by the web map.
func (l Layout) CatchablePath(username string) string {
	return filepath.Join(l.BotDir, "web", "catchable-"+username+".json")
}

// ExamplePath returns the bundled template for path.
func ExamplePath(path string) string {
	return path + ".example"
}
