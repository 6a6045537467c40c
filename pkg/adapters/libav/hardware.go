package libav

import "strings"

// hardwareSuffixes are the name suffixes libavcodec gives decoders that
// wrap a vendor or platform decoding engine.
var hardwareSuffixes = []string{
	"_cuvid",
	"_qsv",
	"_v4l2m2m",
	"_mediacodec",
	"_mmal",
	"_rkmpp",
	"_amf",
	"_vulkan",
	"_videotoolbox",
}

// isHardwareDecoder reports whether the named libavcodec decoder runs on
// dedicated hardware rather than in software.
func isHardwareDecoder(name string) bool {
	name = strings.ToLower(name)
	for _, s := range hardwareSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
