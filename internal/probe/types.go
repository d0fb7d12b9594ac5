package probe

import "strings"

// Metadata is the typed record the probe contract (§4.2) yields from a
// filesystem path.
type Metadata struct {
	Codec    string
	Bitrate  int64 // 0 means absent
	FileSize int64
	Width    int
	Height   int
	IsHDR    bool
	Duration float64 // seconds
	IsHEVC   bool
	Is4K     bool
}

// ffprobeOutput mirrors the subset of `ffprobe -print_format json
// -show_format -show_streams` this probe relies on.
type ffprobeOutput struct {
	Format struct {
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType      string          `json:"codec_type"`
	CodecName      string          `json:"codec_name"`
	BitRate        string          `json:"bit_rate"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	ColorTransfer  string          `json:"color_transfer"`
	ColorPrimaries string          `json:"color_primaries"`
	SideDataList   []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string `json:"side_data_type"`
}

// hdrTransferFunctions are the color_transfer values that mark HDR content
// per §4.2, compared case-insensitively.
var hdrTransferFunctions = map[string]bool{
	"smpte2084":    true,
	"arib-std-b67": true,
	"smpte428":     true,
}

func isHDRTransfer(transfer string) bool {
	return hdrTransferFunctions[strings.ToLower(transfer)]
}

func isBT2020(primaries string) bool {
	return strings.EqualFold(primaries, "bt2020")
}

func sideDataMentionsHDR(sideData []ffprobeSideData) bool {
	for _, sd := range sideData {
		lower := strings.ToLower(sd.SideDataType)
		if strings.Contains(lower, "hdr") || strings.Contains(lower, "dolby vision") {
			return true
		}
	}
	return false
}

func isHEVCCodec(codec string) bool {
	lower := strings.ToLower(codec)
	return lower == "hevc" || lower == "h265"
}

func is4KResolution(width, height int) bool {
	return width >= 3840 || height >= 2160
}
