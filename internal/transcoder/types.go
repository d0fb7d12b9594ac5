package transcoder

// Settings is the subset of Store settings the planner and invocation
// builder consume, per §4.5.
type Settings struct {
	Scale4KTo1080p   bool
	BitrateFactor    float64
	BitrateCap1080p  float64 // Mbps
	BitrateCap720p   float64 // Mbps
	BitrateCapOther  float64 // Mbps
	CRFFallback      int
	MaxBitrateFallback float64 // Mbps
	BufSizeFallback  float64 // Mbps
	NVENCPreset      string
}

// DefaultSettings mirrors the defaults enumerated in §4.5.
func DefaultSettings() Settings {
	return Settings{
		Scale4KTo1080p:      true,
		BitrateFactor:       0.5,
		BitrateCap1080p:     6,
		BitrateCap720p:      3,
		BitrateCapOther:     3,
		CRFFallback:         28,
		MaxBitrateFallback:  8,
		BufSizeFallback:     16,
		NVENCPreset:         "p5",
	}
}

// Input describes the source to be transcoded, as re-probed from the
// scratch copy (step b of §4.5's pipeline).
type Input struct {
	Path     string
	Bitrate  int64 // bps, 0 = absent
	Width    int
	Height   int
	IsHDR    bool
	Is4K     bool
	Duration float64 // seconds
}

// Plan is the resolved, pure-function output of (Input, Settings): the
// video filter chain and bitrate target for the external transcoder,
// independent of whether hardware decode is enabled (BuildArgs applies the
// hardware-decode flags and adapts the filter chain to them).
type Plan struct {
	VideoFilter  string // empty if no filter chain is needed
	TargetBitrate int64  // bps; 0 means use the CRF fallback path
	Downscaled   bool
}
