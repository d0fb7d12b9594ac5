package probe

import (
	"errors"
	"testing"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

func TestParseMetadata_HEVCAnd4K(t *testing.T) {
	raw := &ffprobeOutput{}
	raw.Format.BitRate = "10000000"
	raw.Format.Size = "5368709120"
	raw.Format.Duration = "3600.5"
	raw.Streams = []ffprobeStream{{
		CodecType: "video",
		CodecName: "HEVC",
		Width:     3840,
		Height:    2160,
	}}

	m, err := parseMetadata(raw)
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	if !m.IsHEVC {
		t.Errorf("expected IsHEVC true for codec %q", raw.Streams[0].CodecName)
	}
	if !m.Is4K {
		t.Errorf("expected Is4K true for %dx%d", m.Width, m.Height)
	}
	if m.Bitrate != 10000000 {
		t.Errorf("expected container bitrate fallback, got %d", m.Bitrate)
	}
}

func TestParseMetadata_StreamBitrateWinsOverContainer(t *testing.T) {
	raw := &ffprobeOutput{}
	raw.Format.BitRate = "10000000"
	raw.Streams = []ffprobeStream{{
		CodecType: "video",
		CodecName: "h264",
		BitRate:   "8000000",
		Width:     1920,
		Height:    1080,
	}}

	m, err := parseMetadata(raw)
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	if m.Bitrate != 8000000 {
		t.Errorf("expected stream bitrate to win, got %d", m.Bitrate)
	}
	if m.Is4K {
		t.Errorf("1080p must not be classified as 4k")
	}
}

func TestParseMetadata_HDRDetection(t *testing.T) {
	cases := []struct {
		name   string
		stream ffprobeStream
		want   bool
	}{
		{"smpte2084", ffprobeStream{CodecType: "video", ColorTransfer: "SMPTE2084"}, true},
		{"arib", ffprobeStream{CodecType: "video", ColorTransfer: "arib-std-b67"}, true},
		{"bt2020 primaries", ffprobeStream{CodecType: "video", ColorPrimaries: "bt2020"}, true},
		{"dolby vision side data", ffprobeStream{CodecType: "video", SideDataList: []ffprobeSideData{{SideDataType: "Dolby Vision Configuration"}}}, true},
		{"sdr", ffprobeStream{CodecType: "video", ColorTransfer: "bt709"}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := &ffprobeOutput{Streams: []ffprobeStream{c.stream}}
			m, err := parseMetadata(raw)
			if err != nil {
				t.Fatalf("parseMetadata failed: %v", err)
			}
			if m.IsHDR != c.want {
				t.Errorf("IsHDR = %v, want %v", m.IsHDR, c.want)
			}
		})
	}
}

func TestParseMetadata_NoVideoStream(t *testing.T) {
	raw := &ffprobeOutput{Streams: []ffprobeStream{{CodecType: "audio", CodecName: "aac"}}}
	_, err := parseMetadata(raw)
	if !errors.Is(err, storeerr.ErrNoVideoStream) {
		t.Fatalf("expected ErrNoVideoStream, got %v", err)
	}
}
