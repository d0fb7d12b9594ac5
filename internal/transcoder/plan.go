package transcoder

import "math"

// Plan is a pure function of (input, settings): the same pair always
// yields the same Plan, per §4.5's "transcode plan" contract.
func BuildPlan(in Input, s Settings) Plan {
	p := Plan{}

	downscale := in.Is4K && s.Scale4KTo1080p
	p.Downscaled = downscale

	var filters []string
	if downscale {
		filters = append(filters, "scale_cuda=1920:1080:force_original_aspect_ratio=decrease")
	}
	if in.IsHDR {
		if downscale {
			filters = append(filters, "hwdownload", "format=nv12")
		}
		filters = append(filters,
			"zscale=t=linear:npl=100",
			"format=gbrpf32le",
			"zscale=p=bt709",
			"tonemap=hable:desat=0",
			"zscale=t=bt709:m=bt709:r=tv",
			"format=yuv420p",
		)
	}
	if len(filters) > 0 {
		p.VideoFilter = joinFilters(filters)
	}

	if in.Bitrate > 0 {
		target := int64(float64(in.Bitrate) * s.BitrateFactor)

		effectiveHeight := in.Height
		if downscale {
			effectiveHeight = 1080
		}

		var capMbps float64
		switch {
		case effectiveHeight >= 1080:
			capMbps = s.BitrateCap1080p
		case effectiveHeight <= 720 && effectiveHeight > 0:
			capMbps = s.BitrateCap720p
		default:
			capMbps = s.BitrateCapOther
		}
		capBps := int64(capMbps * 1_000_000)
		if target > capBps {
			target = capBps
		}
		p.TargetBitrate = target
	}

	return p
}

func joinFilters(filters []string) string {
	out := ""
	for i, f := range filters {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

// mbpsToBps converts a settings value expressed in Mbps to bps for use in
// an invocation's bitrate flags.
func mbpsToBps(mbps float64) int64 {
	return int64(math.Round(mbps * 1_000_000))
}
