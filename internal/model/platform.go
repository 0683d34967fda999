package model

const (
	PlatformInstagram = "instagram"
	PlatformX         = "x"
	PlatformTikTok    = "tiktok"
)

var Platforms = []string{PlatformInstagram, PlatformX, PlatformTikTok}

func IsValidPlatform(platform string) bool {
	for _, p := range Platforms {
		if p == platform {
			return true
		}
	}
	return false
}
