package ui

// Config contains window/input/audio related settings.
type Config struct {
	Title           string // window title
	Scale           int    // integer upscaling factor
	AudioStereo     bool   // if true, output true stereo; if false, fold to mono
	AudioLowLatency bool   // hard-cap buffering for minimal latency
	ROMsDir         string // directory to browse for ROMs
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.ROMsDir == "" {
		c.ROMsDir = "roms"
	}
}
