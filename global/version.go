package global

import "fmt"

const (
	Version     = "0.3.1"
	bannerTitle = "paywalld - membership paywall data daemon"
)

func BannerString() string {
	return fmt.Sprintf("%s, version %s", bannerTitle, Version)
}
